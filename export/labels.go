package export

import (
	"golang.org/x/text/language"

	"github.com/warp/records-engine/generic"
)

// =============================================================================
// LANGUAGES
// =============================================================================

// Supported lists the languages labels and messages exist for. The first
// entry is the fallback.
var Supported = []language.Tag{language.English, language.Indonesian}

var matcher = language.NewMatcher(Supported)

// Negotiate picks a supported language from an Accept-Language header.
// An empty or unparseable header, or one with no close match, yields fallback.
func Negotiate(acceptLanguage string, fallback language.Tag) language.Tag {
	if acceptLanguage == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return fallback
	}
	return Supported[idx]
}

// Parse resolves a configured language name such as "id" or "en-US" to a
// supported tag.
func Parse(name string) language.Tag {
	return Negotiate(name, Supported[0])
}

// =============================================================================
// COLUMN LABELS
// =============================================================================

// Column is one exported column: the stored key and its printed header.
type Column struct {
	Key   string
	Label string
}

// columnKeys fixes the export order per entity.
var columnKeys = map[generic.EntityType][]string{
	generic.EntityGrade: {
		"student_id", "subject_id", "semester", "academic_year", "score", "notes",
	},
	generic.EntityTahfidzGrade: {
		"student_id", "program", "semester", "academic_year", "juz", "surah", "score", "predicate", "notes",
	},
	generic.EntityPayment: {
		"student_id", "category", "month", "year", "amount", "paid_amount", "status", "paid_at", "notes",
	},
	generic.EntityAttendance: {
		"student_id", "date", "status", "notes",
	},
	generic.EntityPermission: {
		"student_id", "start_date", "end_date", "reason", "status", "approved_by", "rejection_reason",
	},
}

var headerLabels = map[language.Tag]map[string]string{
	language.English: {
		"student_id":       "Student",
		"subject_id":       "Subject",
		"semester":         "Semester",
		"academic_year":    "Academic Year",
		"score":            "Score",
		"notes":            "Notes",
		"program":          "Program",
		"juz":              "Juz",
		"surah":            "Surah",
		"predicate":        "Predicate",
		"category":         "Category",
		"month":            "Month",
		"year":             "Year",
		"amount":           "Amount",
		"paid_amount":      "Paid",
		"status":           "Status",
		"paid_at":          "Paid At",
		"date":             "Date",
		"start_date":       "From",
		"end_date":         "Until",
		"reason":           "Reason",
		"approved_by":      "Decided By",
		"rejection_reason": "Rejection Reason",
	},
	language.Indonesian: {
		"student_id":       "Siswa",
		"subject_id":       "Mata Pelajaran",
		"semester":         "Semester",
		"academic_year":    "Tahun Ajaran",
		"score":            "Nilai",
		"notes":            "Catatan",
		"program":          "Program",
		"juz":              "Juz",
		"surah":            "Surah",
		"predicate":        "Predikat",
		"category":         "Kategori",
		"month":            "Bulan",
		"year":             "Tahun",
		"amount":           "Jumlah",
		"paid_amount":      "Dibayar",
		"status":           "Status",
		"paid_at":          "Tanggal Bayar",
		"date":             "Tanggal",
		"start_date":       "Dari",
		"end_date":         "Sampai",
		"reason":           "Alasan",
		"approved_by":      "Diputuskan Oleh",
		"rejection_reason": "Alasan Penolakan",
	},
}

// statusLabels translates stored status values. Unknown values print as stored.
var statusLabels = map[language.Tag]map[string]string{
	language.English: {
		"present":  "Present",
		"sick":     "Sick",
		"excused":  "Excused",
		"absent":   "Absent",
		"unpaid":   "Unpaid",
		"partial":  "Partially Paid",
		"paid":     "Paid",
		"pending":  "Pending",
		"approved": "Approved",
		"rejected": "Rejected",
	},
	language.Indonesian: {
		"present":  "Hadir",
		"sick":     "Sakit",
		"excused":  "Izin",
		"absent":   "Alpa",
		"unpaid":   "Belum Bayar",
		"partial":  "Dibayar Sebagian",
		"paid":     "Lunas",
		"pending":  "Menunggu",
		"approved": "Disetujui",
		"rejected": "Ditolak",
	},
}

// Columns returns the labelled columns of an entity in lang, or nil for an
// unknown entity.
func Columns(entity generic.EntityType, lang language.Tag) []Column {
	keys, ok := columnKeys[entity]
	if !ok {
		return nil
	}
	dict := headerLabels[lang]
	if dict == nil {
		dict = headerLabels[Supported[0]]
	}
	out := make([]Column, len(keys))
	for i, k := range keys {
		label := dict[k]
		if label == "" {
			label = k
		}
		out[i] = Column{Key: k, Label: label}
	}
	return out
}

func statusLabel(value string, lang language.Tag) string {
	if l, ok := statusLabels[lang][value]; ok {
		return l
	}
	return value
}
