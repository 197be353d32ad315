// Package patterns holds the declarative, immutable, process-wide regex
// catalogue used by the redaction pipeline's regex sub-layer, plus the
// checksum validators that keep false positives out of it.
//
// The catalogue is read-only after process start (§5): it is built once in
// an init-time slice literal and never mutated. An optional YAML overlay
// (see override.go) can add or disable entries at startup, grounded on the
// same pattern-library shape a teacher example used for an equivalent
// redaction CLI.
package patterns

import "regexp"

// Locale is a regional tag selecting which country-specific patterns apply.
type Locale string

// Recognized locales. The empty/"null" locale selects every pattern.
const (
	LocaleAU Locale = "AU"
	LocaleNZ Locale = "NZ"
	LocaleUK Locale = "UK"
	LocaleUS Locale = "US"
)

// Pattern is one entry in the catalogue.
type Pattern struct {
	ID         string
	Name       string // category emitted in detections
	Regex      *regexp.Regexp
	Validator  Validator // optional
	Confidence float64
	Countries  map[Locale]bool // nil/empty means universal
}

// appliesTo reports whether the pattern applies under the given locale filter. An
// empty locale selects every pattern.
func (p Pattern) appliesTo(locale Locale) bool {
	if locale == "" || len(p.Countries) == 0 {
		return true
	}
	return p.Countries[locale]
}

func countries(locales ...Locale) map[Locale]bool {
	m := make(map[Locale]bool, len(locales))
	for _, l := range locales {
		m[l] = true
	}
	return m
}

// re compiles a pattern, panicking at init time on a malformed literal —
// these are compile-time constants, never user input.
func re(expr string) *regexp.Regexp {
	return regexp.MustCompile(expr)
}

// catalogue is the full, immutable pattern table.
var catalogue = []Pattern{
	{
		ID: "email", Name: "EMAIL", Confidence: 0.95,
		Regex: re(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	},
	{
		ID: "ipv4", Name: "IPV4", Confidence: 0.70,
		Regex:     re(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		Validator: ipv4OctetsValid,
	},
	{
		ID: "ipv6", Name: "IPV6", Confidence: 0.85,
		Regex: re(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`),
	},
	{
		ID: "url", Name: "URL", Confidence: 0.80,
		Regex: re(`https?://[^\s<>"']+`),
	},
	{
		ID: "mac_address", Name: "MAC_ADDRESS", Confidence: 0.90,
		Regex: re(`\b(?:[0-9a-fA-F]{2}:){5}[0-9a-fA-F]{2}\b`),
	},
	{
		ID: "iban", Name: "IBAN", Confidence: 0.85,
		Regex: re(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`),
	},
	{
		ID: "credit_card", Name: "CREDIT_CARD", Confidence: 0.85,
		Regex:     re(`\b(?:\d[ -]?){12,18}\d\b`),
		Validator: luhnValid,
	},
	{
		ID: "vin", Name: "VIN", Confidence: 0.80,
		Regex:     re(`\b[A-HJ-NPR-Z0-9]{17}\b`),
		Validator: vinValid,
	},
	{
		ID: "medical_record_number", Name: "MEDICAL_RECORD_NUMBER", Confidence: 0.75,
		Regex: re(`(?i)(?:MRN|Medical Record(?: Number)?|Patient ID)\s*[:#\-]?\s*([A-Za-z0-9]{3,})`),
	},
	{
		ID: "certificate_number", Name: "CERTIFICATE_NUMBER", Confidence: 0.70,
		Regex: re(`(?i)(?:Certificate|Licence|License)\s*(?:No\.?|Number)\s*[:#\-]?\s*([A-Za-z0-9\-]{3,})`),
	},

	// --- Australia ---
	{
		ID: "au_tfn", Name: "AU_TFN", Confidence: 0.85,
		Regex: re(`\b\d{3}[ -]?\d{3}[ -]?\d{2,3}\b`), Validator: auTFNValid,
		Countries: countries(LocaleAU),
	},
	{
		ID: "au_medicare", Name: "AU_MEDICARE", Confidence: 0.85,
		Regex: re(`\b\d{4}[ -]?\d{5}[ -]?\d{1,2}\b`), Validator: auMedicareValid,
		Countries: countries(LocaleAU),
	},
	{
		ID: "au_abn", Name: "AU_ABN", Confidence: 0.75,
		Regex: re(`\b\d{2}[ ]?\d{3}[ ]?\d{3}[ ]?\d{3}\b`),
		Countries: countries(LocaleAU),
	},
	{
		ID: "au_passport", Name: "AU_PASSPORT", Confidence: 0.65,
		Regex: re(`\b[A-Za-z]\d{7}\b`), Countries: countries(LocaleAU),
	},
	{
		ID: "au_bsb_account", Name: "AU_BSB_ACCOUNT", Confidence: 0.70,
		Regex: re(`\b\d{3}-\d{3}\s+\d{6,10}\b`), Countries: countries(LocaleAU),
	},
	{
		ID: "au_address", Name: "AU_ADDRESS", Confidence: 0.55,
		Regex: re(`(?i)\b\d{1,5}\s+[A-Za-z0-9' ]+\s+(?:Street|St|Road|Rd|Avenue|Ave|Drive|Dr|Lane|Ln|Court|Ct|Place|Pl)\b`),
		Countries: countries(LocaleAU),
	},
	{
		ID: "au_dob", Name: "AU_DOB", Confidence: 0.60,
		Regex: re(`\b\d{1,2}/\d{1,2}/\d{4}\b`), Countries: countries(LocaleAU),
	},
	{
		ID: "au_landline", Name: "AU_LANDLINE", Confidence: 0.60,
		Regex: re(`\b0[2-8][ -]?\d{4}[ -]?\d{4}\b`), Countries: countries(LocaleAU),
	},
	{
		ID: "au_mobile", Name: "AU_MOBILE", Confidence: 0.65,
		Regex: re(`\b04\d{2}[ -]?\d{3}[ -]?\d{3}\b`), Countries: countries(LocaleAU),
	},

	// --- New Zealand ---
	{
		ID: "nz_ird", Name: "NZ_IRD", Confidence: 0.85,
		Regex: re(`\b\d{2,3}[ -]?\d{3}[ -]?\d{3}\b`), Validator: nzIRDValid,
		Countries: countries(LocaleNZ),
	},
	{
		ID: "nz_nhi", Name: "NZ_NHI", Confidence: 0.85,
		Regex: re(`\b[A-HJ-NP-Za-hj-np-z]{3}\d{4}\b`), Countries: countries(LocaleNZ),
	},
	{
		ID: "nz_passport", Name: "NZ_PASSPORT", Confidence: 0.65,
		Regex: re(`\b[A-Za-z]{2}\d{6}\b`), Countries: countries(LocaleNZ),
	},
	{
		ID: "nz_bank_account", Name: "NZ_BANK_ACCOUNT", Confidence: 0.70,
		Regex: re(`\b\d{2}-\d{4}-\d{7}-\d{2,3}\b`), Countries: countries(LocaleNZ),
	},
	{
		ID: "nz_landline", Name: "NZ_LANDLINE", Confidence: 0.55,
		Regex: re(`\b0[3-9][ -]?\d{3}[ -]?\d{4}\b`), Countries: countries(LocaleNZ),
	},
	{
		ID: "nz_mobile", Name: "NZ_MOBILE", Confidence: 0.65,
		Regex: re(`\b02\d[ -]?\d{3}[ -]?\d{3,4}\b`), Countries: countries(LocaleNZ),
	},
	{
		ID: "nz_address", Name: "NZ_ADDRESS", Confidence: 0.55,
		Regex: re(`(?i)\b\d{1,5}\s+[A-Za-z0-9' ]+\s+(?:Street|St|Road|Rd|Avenue|Ave|Drive|Dr|Lane|Ln|Place|Pl)\b`),
		Countries: countries(LocaleNZ),
	},
	{
		ID: "nz_dob", Name: "NZ_DOB", Confidence: 0.60,
		Regex: re(`\b\d{1,2}/\d{1,2}/\d{4}\b`), Countries: countries(LocaleNZ),
	},
	{
		ID: "au_nz_postcode", Name: "POSTCODE", Confidence: 0.40,
		Regex: re(`\b\d{4}\b`), Countries: countries(LocaleAU, LocaleNZ),
	},

	// --- United Kingdom ---
	{
		ID: "uk_nino", Name: "UK_NINO", Confidence: 0.85,
		Regex: re(`\b[A-CEGHJ-PR-TW-Za-ceghj-pr-tw-z][A-CEGHJ-NPR-TW-Za-ceghj-npr-tw-z]\d{6}[A-DFMa-dfm]\b`),
		Countries: countries(LocaleUK),
	},
	{
		ID: "uk_nhs", Name: "UK_NHS", Confidence: 0.85,
		Regex: re(`\b\d{3}[ -]?\d{3}[ -]?\d{4}\b`), Validator: ukNHSValid,
		Countries: countries(LocaleUK),
	},
	{
		ID: "uk_passport", Name: "UK_PASSPORT", Confidence: 0.65,
		Regex: re(`\b\d{9}\b`), Countries: countries(LocaleUK),
	},
	{
		ID: "uk_driving_licence", Name: "UK_DRIVING_LICENCE", Confidence: 0.70,
		Regex: re(`\b[A-Za-z9]{5}\d{6}[A-Za-z9]{2}\d[A-Za-z]{2}\b`), Countries: countries(LocaleUK),
	},
	{
		ID: "uk_sort_code", Name: "UK_SORT_CODE", Confidence: 0.70,
		Regex: re(`\b\d{2}-\d{2}-\d{2}\b`), Countries: countries(LocaleUK),
	},
	{
		ID: "uk_postcode", Name: "UK_POSTCODE", Confidence: 0.75,
		Regex: re(`(?i)\b[A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}\b`), Countries: countries(LocaleUK),
	},
	{
		ID: "uk_address", Name: "UK_ADDRESS", Confidence: 0.55,
		Regex: re(`(?i)\b\d{1,5}\s+[A-Za-z0-9' ]+\s+(?:Street|St|Road|Rd|Avenue|Ave|Drive|Dr|Lane|Ln|Close|Court|Ct)\b`),
		Countries: countries(LocaleUK),
	},
	{
		ID: "uk_dob", Name: "UK_DOB", Confidence: 0.60,
		Regex: re(`\b\d{1,2}/\d{1,2}/\d{4}\b`), Countries: countries(LocaleUK),
	},
	{
		ID: "uk_landline", Name: "UK_LANDLINE", Confidence: 0.55,
		Regex: re(`\b0\d{2,4}[ -]?\d{3}[ -]?\d{3,4}\b`), Countries: countries(LocaleUK),
	},
	{
		ID: "uk_mobile", Name: "UK_MOBILE", Confidence: 0.65,
		Regex: re(`\b07\d{3}[ -]?\d{6}\b`), Countries: countries(LocaleUK),
	},

	// --- United States ---
	{
		ID: "us_phone", Name: "US_PHONE", Confidence: 0.65,
		Regex: re(`\b(?:\+?1[ -]?)?\(?\d{3}\)?[ -]?\d{3}[ -]?\d{4}\b`),
		Countries: countries(LocaleUS),
	},
	{
		ID: "us_ssn", Name: "US_SSN", Confidence: 0.80,
		Regex: re(`\b\d{3}-\d{2}-\d{4}\b`), Countries: countries(LocaleUS),
	},
}

// All returns the catalogue filtered by locale. An empty locale returns
// every pattern (the "null" locale from §4.2).
func All(locale Locale) []Pattern {
	out := make([]Pattern, 0, len(catalogue))
	for _, p := range catalogue {
		if p.appliesTo(locale) {
			out = append(out, p)
		}
	}
	return out
}

// ByID returns the catalogue entry with the given id, if any.
func ByID(id string) (Pattern, bool) {
	for _, p := range catalogue {
		if p.ID == id {
			return p, true
		}
	}
	return Pattern{}, false
}
