package extraction

import (
	"fmt"
	"strings"

	"loan-intake/internal/llm"
)

// FieldType is the primitive type of an extracted field.
type FieldType int

const (
	String FieldType = iota
	Integer
	// Date values are carried as strings exactly as printed on the document.
	Date
)

func (t FieldType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Date:
		return "date"
	default:
		return "string"
	}
}

// jsonType is the JSON Schema type used for the field.
func (t FieldType) jsonType() string {
	if t == Integer {
		return "integer"
	}
	return "string"
}

// Field is one required field of a Schema.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	// Digits, when set, is the exact number of decimal digits an Integer
	// field must have.
	Digits int
}

// Schema is the fixed field set one extractor must produce. Field order is
// the stable column order used for persistence.
type Schema struct {
	Name    string
	Subject string
	Fields  []Field
}

// Field returns the field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// ResponseSchema renders the JSON Schema sent to the gateway. It carries
// only the keywords the providers' structured output modes accept.
func (s Schema) ResponseSchema() llm.ResponseSchema {
	props := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		prop := map[string]any{"type": f.Type.jsonType()}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		props[f.Name] = prop
	}
	return llm.ResponseSchema{
		"title":                s.Name,
		"type":                 "object",
		"properties":           props,
		"required":             s.Names(),
		"additionalProperties": false,
	}
}

// contractSchema is ResponseSchema plus the value bounds the providers
// cannot enforce: integers are non-negative and fixed-width identifiers
// have exactly Digits digits.
func (s Schema) contractSchema() map[string]any {
	doc := s.ResponseSchema()
	props := doc["properties"].(map[string]any)
	for _, f := range s.Fields {
		if f.Type != Integer {
			continue
		}
		prop := props[f.Name].(map[string]any)
		prop["minimum"] = 0
		if f.Digits > 0 {
			prop["minimum"] = pow10(f.Digits - 1)
			prop["maximum"] = pow10(f.Digits) - 1
		}
	}
	return doc
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// Instructions names exactly the fields to extract.
func (s Schema) Instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract the following fields from this %s and return them as a single JSON object.\n", s.Subject)
	b.WriteString("Use exactly these keys and no others:\n")
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "- %s (%s)", f.Name, f.Type)
		if f.Description != "" {
			fmt.Fprintf(&b, ": %s", f.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("Integers must be plain digits without separators or currency symbols. Copy dates as printed.")
	return b.String()
}

var (
	NationalIDFrontSchema = Schema{
		Name:    "national_id_front",
		Subject: "front side of a national ID card",
		Fields: []Field{
			{Name: "Document_Type", Type: String, Description: "always national_id_front"},
			{Name: "Full_Name", Type: String},
			{Name: "Address", Type: String},
			{Name: "National_ID", Type: Integer, Description: "the 14 digit national ID number", Digits: 14},
			{Name: "Date_of_Birth", Type: Date},
		},
	}

	NationalIDBackSchema = Schema{
		Name:    "national_id_back",
		Subject: "back side of a national ID card",
		Fields: []Field{
			{Name: "Document_Type", Type: String, Description: "always national_id_back"},
			{Name: "Issue_Date", Type: Date},
			{Name: "Gender", Type: String},
			{Name: "Expiry_Date", Type: Date},
		},
	}

	HRLetterSchema = Schema{
		Name:    "hr_letter",
		Subject: "employment (HR) letter",
		Fields: []Field{
			{Name: "Document_Type", Type: String, Description: "always hr_letter"},
			{Name: "Employee_Name", Type: String},
			{Name: "Employer_Name", Type: String},
			{Name: "Hire_Date", Type: Date},
			{Name: "Job_Title", Type: String},
			{Name: "Letter_Date", Type: Date},
			{Name: "Monthly_Gross_Salary", Type: Integer},
			{Name: "National_ID", Type: Integer, Description: "the employee's 14 digit national ID number", Digits: 14},
			{Name: "Currency", Type: String, Description: "currency of the salary, e.g. EGP"},
		},
	}

	UtilityReceiptSchema = Schema{
		Name:    "utility_receipt",
		Subject: "utility bill or receipt",
		Fields: []Field{
			{Name: "Amount_Billed", Type: Integer},
			{Name: "Bill_Issue_Date", Type: Date},
			{Name: "Customer_Name", Type: String},
			{Name: "Document_Type", Type: String, Description: "always utility_receipt"},
			{Name: "Service_Provider", Type: String},
		},
	}
)
