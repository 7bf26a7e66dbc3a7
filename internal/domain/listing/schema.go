package listing

import "strings"

type SlugStrategy int

const (
	// SlugTimestamp appends unix millis on create and whenever the name changes.
	SlugTimestamp SlugStrategy = iota
	// SlugIncrementing derives the slug from SlugParts and appends -1, -2, ... on conflict.
	SlugIncrementing
)

type Field struct {
	Key    string
	Column string
}

// Schema describes one listing variant; the generic service and repository are driven by it.
type Schema struct {
	Kind   Kind
	Plural string
	Table  string

	Attrs []Field
	// Images[0] is the primary image used by the latest projection.
	Images []Field

	Required []string

	Slug      SlugStrategy
	SlugParts []string

	// Scope lists the keys that, with slug, identify a row in public URLs.
	Scope []string

	FilterKey string
	// SpecialtyColumn is matched by the search endpoint; empty means specialty is ignored.
	SpecialtyColumn string
}

var coreFields = []Field{
	{Key: KeyName, Column: "name"},
	{Key: KeyArea, Column: "area"},
	{Key: KeyCategory, Column: "category"},
	{Key: KeyType, Column: "type"},
}

var Doctor = Schema{
	Kind:   KindDoctor,
	Plural: "doctors",
	Table:  "doctors",
	Attrs: []Field{
		{Key: "specialization", Column: "specialization"},
		{Key: "description", Column: "description"},
		{Key: "languagesSpoken", Column: "languages_spoken"},
		{Key: "experienceYears", Column: "experience_years"},
		{Key: "qualifications", Column: "qualifications"},
		{Key: "mobile", Column: "mobile"},
		{Key: "email", Column: "email"},
		{Key: "address", Column: "address"},
	},
	Images: []Field{
		{Key: "doctorImage", Column: "doctor_image"},
		{Key: "clinicImage", Column: "clinic_image"},
		{Key: "otherImage", Column: "other_image"},
	},
	Required:        []string{KeyName, KeyCategory, KeyArea, "specialization"},
	Slug:            SlugIncrementing,
	SlugParts:       []string{KeyName, KeyCategory},
	Scope:           []string{KeyCategory},
	FilterKey:       KeyCategory,
	SpecialtyColumn: "specialization",
}

var Clinic = Schema{
	Kind:   KindClinic,
	Plural: "clinics",
	Table:  "clinics",
	Attrs: []Field{
		{Key: "doctorName", Column: "doctor_name"},
		{Key: "qualifications", Column: "qualifications"},
		{Key: "mobile", Column: "mobile"},
		{Key: "email", Column: "email"},
		{Key: "address", Column: "address"},
		{Key: "website", Column: "website"},
		{Key: "experience", Column: "experience"},
		{Key: "specialization", Column: "specialization"},
		{Key: "description", Column: "description"},
	},
	Images: []Field{
		{Key: "clinicImage", Column: "clinic_image"},
		{Key: "doctorImage", Column: "doctor_image"},
		{Key: "otherImage", Column: "other_image"},
	},
	Required:        []string{KeyName, KeyType, KeyArea},
	Slug:            SlugTimestamp,
	SlugParts:       []string{KeyName},
	Scope:           []string{KeyArea, KeyCategory},
	FilterKey:       KeyType,
	SpecialtyColumn: "type",
}

var Hospital = Schema{
	Kind:   KindHospital,
	Plural: "hospitals",
	Table:  "hospitals",
	Attrs: []Field{
		{Key: "mobile", Column: "mobile"},
		{Key: "email", Column: "email"},
		{Key: "address", Column: "address"},
		{Key: "website", Column: "website"},
		{Key: "description", Column: "description"},
	},
	Images: []Field{
		{Key: "hospitalImage", Column: "hospital_image"},
		{Key: "otherImage", Column: "other_image"},
	},
	Required:  []string{KeyName, KeyType, KeyArea},
	Slug:      SlugTimestamp,
	SlugParts: []string{KeyName},
	Scope:     []string{KeyArea},
	FilterKey: KeyType,
}

var Schemas = []Schema{Doctor, Clinic, Hospital}

func SchemaFor(kind string) (Schema, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	for _, s := range Schemas {
		if s.Kind == k {
			return s, true
		}
	}
	return Schema{}, false
}

// Fields returns core, attribute and image fields in column order.
func (s Schema) Fields() []Field {
	out := make([]Field, 0, len(coreFields)+len(s.Attrs)+len(s.Images))
	out = append(out, coreFields...)
	out = append(out, s.Attrs...)
	out = append(out, s.Images...)
	return out
}

// TextKeys are the keys accepted from a request body (everything except images).
func (s Schema) TextKeys() []string {
	keys := make([]string, 0, len(coreFields)+len(s.Attrs))
	for _, f := range coreFields {
		keys = append(keys, f.Key)
	}
	for _, f := range s.Attrs {
		keys = append(keys, f.Key)
	}
	return keys
}

func (s Schema) ImageKeys() []string {
	keys := make([]string, len(s.Images))
	for i, f := range s.Images {
		keys[i] = f.Key
	}
	return keys
}

func (s Schema) PrimaryImage() Field {
	return s.Images[0]
}

func (s Schema) IsRequired(key string) bool {
	for _, k := range s.Required {
		if k == key {
			return true
		}
	}
	return false
}

// ColumnFor maps a core or attribute key to its column name.
func (s Schema) ColumnFor(key string) (string, bool) {
	for _, f := range s.Fields() {
		if f.Key == key {
			return f.Column, true
		}
	}
	return "", false
}
