package schema

import (
	"strings"

	"go.uber.org/zap"

	"github.com/tabfetch/tabfetch/internal/xmlnode"
	"github.com/tabfetch/tabfetch/pkg/logger"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// Wire names for the parts of a translated value element. The record parser
// surfaces an element's attributes as "@name" entries and its character data
// as "#text", so a translated value decodes as a two-field sub-record.
const (
	// IDAttrField is the language identifier attribute of a translated value
	IDAttrField = "@id"
	// TextField is the character data of a translated value
	TextField = "#text"
)

// hintKinds is the fixed lookup from the service's declared format hints to
// scalar kinds. The vocabulary is the service's validation-rule names; the
// mapping is deterministic and total over the known set.
var hintKinds = map[string]ScalarKind{
	"isBool": Boolean,

	"isInt":              Integer,
	"isUnsignedInt":      Integer,
	"isUnsignedId":       Integer,
	"isNullOrUnsignedId": Integer,
	"isImageSize":        Integer,

	"isFloat":         Decimal,
	"isUnsignedFloat": Decimal,
	"isPrice":         Decimal,
	"isNegativePrice": Decimal,
	"isPercentage":    Decimal,

	"isDate":       DateTime,
	"isDateOrNull": DateTime,
	"isBirthDate":  Date,

	"isCleanHtml": HtmlText,
	"isMessage":   HtmlText,

	// identifiers that look numeric but must stay textual (leading zeros)
	"isEan13": Text,
	"isUpc":   Text,
	"isIsbn":  Text,
	"isMpn":   Text,

	"isString":          Text,
	"isAnything":        Text,
	"isGenericName":     Text,
	"isCatalogName":     Text,
	"isCarrierName":     Text,
	"isConfigName":      Text,
	"isCustomerName":    Text,
	"isImageTypeName":   Text,
	"isModuleName":      Text,
	"isName":            Text,
	"isTplName":         Text,
	"isThemeName":       Text,
	"isReference":       Text,
	"isLinkRewrite":     Text,
	"isDateFormat":      Text,
	"isPhpDateFormat":   Text,
	"isEmail":           Text,
	"isUrl":             Text,
	"isAbsoluteUrl":     Text,
	"isAddress":         Text,
	"isCityName":        Text,
	"isPostCode":        Text,
	"isZipCodeFormat":   Text,
	"isPhoneNumber":     Text,
	"isTrackingNumber":  Text,
	"isColor":           Text,
	"isLocale":          Text,
	"isLanguageCode":    Text,
	"isLanguageIsoCode": Text,
	"isNumericIsoCode":  Text,
	"isStateIsoCode":    Text,
	"isSerializedArray": Text,
	"isJson":            Text,

	"isProductVisibility":  Text,
	"isStockManagement":    Text,
	"isReductionType":      Text,
	"isPriceDisplayMethod": Text,
}

// Resolver turns a resource's raw schema synopsis into a Schema.
//
// The zero value is ready to use: unknown format hints fall back to a
// nullable Text field (the forward-compatible choice for a service that may
// grow its hint vocabulary). Setting StrictHints makes an unknown hint a
// schema error instead.
type Resolver struct {
	StrictHints bool
}

// Resolve parses the synopsis bytes fetched for the given resource type and
// produces its Schema. The synopsis is tag-structured markup: a root wrapper
// holding one resource element whose children declare the fields, with
// one-to-many relations grouped under an "associations" child.
func (r *Resolver) Resolve(resource string, synopsis []byte) (*Schema, error) {
	root, err := xmlnode.Parse(synopsis)
	if err != nil {
		return nil, taberrors.Wrap(err, taberrors.ErrorTypeSchema, "malformed schema synopsis").
			WithDetail("resource", resource)
	}

	if len(root.Children) != 1 {
		return nil, taberrors.New(taberrors.ErrorTypeSchema, "synopsis root must wrap exactly one resource element").
			WithDetail("resource", resource).
			WithDetail("elements", len(root.Children))
	}
	body := root.Children[0]
	if len(body.Children) == 0 {
		return nil, taberrors.New(taberrors.ErrorTypeSchema, "resource declares no fields").
			WithDetail("resource", resource)
	}

	var fields []FieldSpec
	for _, node := range body.Children {
		switch {
		case node.Name == "associations":
			grouped, err := r.resolveAssociations(resource, node)
			if err != nil {
				return nil, err
			}
			fields = append(fields, grouped...)

		case isTranslated(node):
			fields = append(fields, translatedField(node.Name))

		default:
			spec, err := r.resolveScalar(resource, node)
			if err != nil {
				return nil, err
			}
			fields = append(fields, spec)
		}
	}

	// The service omits the record identifier from the synopsis but every
	// record carries one.
	if !hasField(fields, "id") {
		fields = append([]FieldSpec{{Name: "id", Scalar: Integer, Nullable: false}}, fields...)
	}

	return New(resource, fields)
}

// Resolve resolves a synopsis with the default policy (unknown hints become
// nullable Text fields).
func Resolve(resource string, synopsis []byte) (*Schema, error) {
	var r Resolver
	return r.Resolve(resource, synopsis)
}

func (r *Resolver) resolveScalar(resource string, node *xmlnode.Node) (FieldSpec, error) {
	nullable := true
	if req, ok := node.Attr("required"); ok && req == "true" {
		nullable = false
	}

	if hint, ok := node.Attr("format"); ok {
		kind, known := hintKinds[hint]
		if !known {
			if r.StrictHints {
				return FieldSpec{}, taberrors.New(taberrors.ErrorTypeSchema, "unknown format hint").
					WithDetail("resource", resource).
					WithDetail("field", node.Name).
					WithDetail("hint", hint)
			}
			logger.Warn("unknown format hint, treating field as nullable text",
				zap.String("resource", resource),
				zap.String("field", node.Name),
				zap.String("hint", hint))
			return FieldSpec{Name: node.Name, Scalar: Text, Nullable: true}, nil
		}
		return FieldSpec{Name: node.Name, Scalar: kind, Nullable: nullable}, nil
	}

	return FieldSpec{Name: node.Name, Scalar: kindFromName(node.Name), Nullable: nullable}, nil
}

func (r *Resolver) resolveAssociations(resource string, node *xmlnode.Node) ([]FieldSpec, error) {
	var fields []FieldSpec
	for _, assoc := range node.Children {
		elem := firstElement(assoc)
		if elem == nil {
			return nil, taberrors.New(taberrors.ErrorTypeSchema, "association declares no element").
				WithDetail("resource", resource).
				WithDetail("association", assoc.Name)
		}
		// nodeType names the element when present; otherwise the first
		// child's tag name serves.
		elementName := elem.Name
		if nt, ok := assoc.Attr("nodeType"); ok {
			elementName = nt
			if named := assoc.Child(nt); named != nil {
				elem = named
			}
		}

		var elemFields []FieldSpec
		for _, f := range elem.Children {
			if isTranslated(f) {
				elemFields = append(elemFields, translatedField(f.Name))
				continue
			}
			spec, err := r.resolveScalar(resource, f)
			if err != nil {
				return nil, err
			}
			elemFields = append(elemFields, spec)
		}
		if len(elemFields) == 0 {
			return nil, taberrors.New(taberrors.ErrorTypeSchema, "association element declares no fields").
				WithDetail("resource", resource).
				WithDetail("association", assoc.Name)
		}

		elemSchema, err := New(resource+"."+assoc.Name, elemFields)
		if err != nil {
			return nil, err
		}
		fields = append(fields, FieldSpec{
			Name:     assoc.Name,
			Nullable: true,
			Assoc: &Association{
				ElementName: elementName,
				Element:     elemSchema,
				Grouped:     true,
			},
		})
	}
	return fields, nil
}

// isTranslated detects per-language fields: elements whose children are
// "language" entries carrying an id attribute.
func isTranslated(node *xmlnode.Node) bool {
	lang := node.Child("language")
	if lang == nil {
		return false
	}
	_, hasID := lang.Attr("id")
	return hasID
}

// translatedField models a per-language field as an inline one-to-many
// relation whose elements pair the language id with the translated text.
func translatedField(name string) FieldSpec {
	element, _ := New(name+".language", []FieldSpec{
		{Name: IDAttrField, Scalar: Integer, Nullable: false},
		{Name: TextField, Scalar: Text, Nullable: true},
	})
	return FieldSpec{
		Name:     name,
		Nullable: true,
		Assoc: &Association{
			ElementName: "language",
			Element:     element,
		},
	}
}

// kindFromName is the fallback type heuristic for fields declared without a
// format hint, keyed off the service's naming conventions.
func kindFromName(name string) ScalarKind {
	switch {
	case name == "id" || strings.HasPrefix(name, "id_") || strings.HasSuffix(name, "_id"):
		return Integer
	case strings.HasPrefix(name, "date_") || strings.HasSuffix(name, "_date"):
		return DateTime
	default:
		return Text
	}
}

func firstElement(n *xmlnode.Node) *xmlnode.Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

func hasField(fields []FieldSpec, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
