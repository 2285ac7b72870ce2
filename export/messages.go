package export

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text is the key; the catalog carries the rest.
const (
	MsgBatchSaved        = "Saved %d new and %d updated records."
	MsgBatchUpserted     = "Saved %d records."
	MsgPaymentsGenerated = "Generated %d payments, skipped %d already billed."
	MsgPermissionCreated = "Leave request submitted."
	MsgPermissionDecided = "Leave request %s."
	MsgValidationFailed  = "Validation failed"
	MsgNotFound          = "Record not found"
	MsgAlreadyDecided    = "Request has already been decided"
	MsgWriteFailed       = "Failed to save records"
	MsgUnauthorized      = "Sign in required"
	MsgStudentsImported  = "Imported %d students."
	MsgScenarioLoaded    = "Scenario %s loaded."
)

var translations = map[language.Tag]map[string]string{
	language.Indonesian: {
		MsgBatchSaved:        "%d data baru dan %d data diperbarui tersimpan.",
		MsgBatchUpserted:     "%d data tersimpan.",
		MsgPaymentsGenerated: "%d tagihan dibuat, %d sudah ditagih dilewati.",
		MsgPermissionCreated: "Pengajuan izin terkirim.",
		MsgPermissionDecided: "Pengajuan izin %s.",
		MsgValidationFailed:  "Validasi gagal",
		MsgNotFound:          "Data tidak ditemukan",
		MsgAlreadyDecided:    "Pengajuan sudah diputuskan",
		MsgWriteFailed:       "Gagal menyimpan data",
		MsgUnauthorized:      "Silakan masuk terlebih dahulu",
		MsgStudentsImported:  "%d siswa diimpor.",
		MsgScenarioLoaded:    "Skenario %s dimuat.",
	},
}

var messages = newCatalog()

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, dict := range translations {
		for key, msg := range dict {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Printer returns a message printer for lang backed by the toast catalog.
func Printer(lang language.Tag) *message.Printer {
	return message.NewPrinter(lang, message.Catalog(messages))
}

// Status renders a stored status value in lang, e.g. "approved" as "Disetujui".
func Status(value string, lang language.Tag) string {
	return statusLabel(value, lang)
}
