package extraction

import (
	"context"
	"fmt"

	"loan-intake/internal/documents"
	"loan-intake/internal/llm"
)

// Classifier resolves an image to a document type.
type Classifier interface {
	Classify(ctx context.Context, img documents.Image) (documents.Type, error)
}

// Router dispatches a classified image to its extractor(s).
type Router struct {
	Classifier Classifier
	Front      Extractor
	Back       Extractor
	HRLetter   Extractor
	Utility    Extractor
}

// NewRouter wires the four extractors to one gateway.
func NewRouter(classifier Classifier, gw llm.Gateway) *Router {
	return &Router{
		Classifier: classifier,
		Front:      Extractor{Schema: NationalIDFrontSchema, Gateway: gw},
		Back:       Extractor{Schema: NationalIDBackSchema, Gateway: gw},
		HRLetter:   Extractor{Schema: HRLetterSchema, Gateway: gw},
		Utility:    Extractor{Schema: UtilityReceiptSchema, Gateway: gw},
	}
}

// ClassifyAndExtract classifies img and extracts its fields.
func (r *Router) ClassifyAndExtract(ctx context.Context, img documents.Image) (documents.Type, Result, error) {
	t, err := r.Classifier.Classify(ctx, img)
	if err != nil {
		return "", nil, err
	}
	res, err := r.Extract(ctx, t, img)
	if err != nil {
		return t, nil, err
	}
	return t, res, nil
}

// Extract runs the extractor(s) for t. Either side of a national ID runs
// both the front and back extractors on the same image, since both sides
// are expected in one scan. Any extractor error fails the whole call.
func (r *Router) Extract(ctx context.Context, t documents.Type, img documents.Image) (Result, error) {
	switch t {
	case documents.NationalIDFront, documents.NationalIDBack:
		front, err := r.Front.Extract(ctx, img)
		if err != nil {
			return nil, err
		}
		back, err := r.Back.Extract(ctx, img)
		if err != nil {
			return nil, err
		}
		return CompositeRecord{Front: front, Back: back}, nil
	case documents.HRLetter:
		return single(r.HRLetter.Extract(ctx, img))
	case documents.UtilityReceipt:
		return single(r.Utility.Extract(ctx, img))
	default:
		return nil, fmt.Errorf("extraction: no extractor for document type %q", string(t))
	}
}

func single(rec Record, err error) (Result, error) {
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SchemaFor returns the schema for t. National ID types map to their own side.
func SchemaFor(t documents.Type) (Schema, error) {
	switch t {
	case documents.NationalIDFront:
		return NationalIDFrontSchema, nil
	case documents.NationalIDBack:
		return NationalIDBackSchema, nil
	case documents.HRLetter:
		return HRLetterSchema, nil
	case documents.UtilityReceipt:
		return UtilityReceiptSchema, nil
	default:
		return Schema{}, fmt.Errorf("extraction: no schema for document type %q", string(t))
	}
}

// FamilyFields returns the persisted column set of a family in column order.
// The national_id family is the front fields followed by the back fields not
// already present.
func FamilyFields(f documents.Family) ([]Field, error) {
	switch f {
	case documents.FamilyNationalID:
		out := append([]Field(nil), NationalIDFrontSchema.Fields...)
		for _, fld := range NationalIDBackSchema.Fields {
			if _, dup := NationalIDFrontSchema.Field(fld.Name); !dup {
				out = append(out, fld)
			}
		}
		return out, nil
	case documents.FamilyHRLetter:
		return append([]Field(nil), HRLetterSchema.Fields...), nil
	case documents.FamilyUtilityReceipt:
		return append([]Field(nil), UtilityReceiptSchema.Fields...), nil
	default:
		return nil, fmt.Errorf("extraction: unknown family %q", string(f))
	}
}
