package patient

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// PrescriptionService is the hospital unit that prescribed the treatment.
type PrescriptionService string

const (
	ServiceChph PrescriptionService = "Chph"
	ServiceDer1 PrescriptionService = "Der1"
	ServiceEnfc PrescriptionService = "Enfc"
	ServiceHadp PrescriptionService = "Hadp"
	ServiceHel  PrescriptionService = "Hel"
	ServiceNath PrescriptionService = "Nath"
	ServicePedh PrescriptionService = "Pedh"
	ServicePonh PrescriptionService = "Ponh"
	ServiceSipi PrescriptionService = "Sipi"
)

var validServices = map[PrescriptionService]bool{
	ServiceChph: true, ServiceDer1: true, ServiceEnfc: true, ServiceHadp: true, ServiceHel: true,
	ServiceNath: true, ServicePedh: true, ServicePonh: true, ServiceSipi: true,
}

func (s PrescriptionService) Valid() bool { return validServices[s] }

func (s *PrescriptionService) UnmarshalJSON(data []byte) error {
	return unmarshalCode(data, s, validServices, "prescription service")
}

type Sex string

const (
	SexMale   Sex = "Male"
	SexFemale Sex = "Female"
	// SexUnknown marks records written before sex was collected.
	SexUnknown Sex = "Unknown"
)

var validSexes = map[Sex]bool{SexMale: true, SexFemale: true, SexUnknown: true}

func (s Sex) Valid() bool { return validSexes[s] }

func (s *Sex) UnmarshalJSON(data []byte) error {
	return unmarshalCode(data, s, validSexes, "sex")
}

// Formula identifies a standardized parenteral nutrition bag.
type Formula string

const (
	FormulaPediavenNn1 Formula = "PediavenNn1"
	FormulaPediavenNn2 Formula = "PediavenNn2"
	FormulaPediavenG15 Formula = "PediavenG15"
	FormulaPediavenG20 Formula = "PediavenG20"
	FormulaPediavenG25 Formula = "PediavenG25"
	FormulaNumetaG13e  Formula = "NumetaG13e"
	FormulaNumetaG16e  Formula = "NumetaG16e"
	FormulaNumetaG19e  Formula = "NumetaG19e"
	FormulaOlimel      Formula = "Olimel"
)

var validFormulas = map[Formula]bool{
	FormulaPediavenNn1: true, FormulaPediavenNn2: true, FormulaPediavenG15: true,
	FormulaPediavenG20: true, FormulaPediavenG25: true, FormulaNumetaG13e: true,
	FormulaNumetaG16e: true, FormulaNumetaG19e: true, FormulaOlimel: true,
}

func (f Formula) Valid() bool { return validFormulas[f] }

type TreatmentKind string

const (
	TreatmentTailorMade   TreatmentKind = "TailorMade"
	TreatmentStandardized TreatmentKind = "Standardized"
)

// TreatmentType is either tailor-made or one standardized formula. Formula is
// empty for TailorMade, and for Standardized records that predate formulas.
type TreatmentType struct {
	Kind    TreatmentKind
	Formula Formula
}

func TailorMade() TreatmentType { return TreatmentType{Kind: TreatmentTailorMade} }

func Standardized(f Formula) TreatmentType {
	return TreatmentType{Kind: TreatmentStandardized, Formula: f}
}

func (t TreatmentType) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TreatmentTailorMade:
		return marshalTagged(string(t.Kind), nil)
	case TreatmentStandardized:
		if t.Formula == "" {
			return marshalTagged(string(t.Kind), nil)
		}
		if !t.Formula.Valid() {
			return nil, fmt.Errorf("unknown formula %q", t.Formula)
		}
		return marshalTagged(string(t.Kind), t.Formula)
	default:
		return nil, fmt.Errorf("unknown treatment type %q", t.Kind)
	}
}

func (t *TreatmentType) UnmarshalJSON(data []byte) error {
	var in taggedIn
	if err := decodeTagged(data, &in); err != nil {
		return fmt.Errorf("treatment type: %w", err)
	}

	switch TreatmentKind(in.T) {
	case TreatmentTailorMade:
		*t = TailorMade()
	case TreatmentStandardized:
		var f Formula
		if in.hasContent() {
			if err := json.Unmarshal(in.C, &f); err != nil {
				return fmt.Errorf("treatment type: formula: %w", err)
			}
			if !f.Valid() {
				return fmt.Errorf("treatment type: unknown formula %q", f)
			}
		}
		*t = Standardized(f)
	default:
		return fmt.Errorf("treatment type: unknown variant %q", in.T)
	}
	return nil
}

func (t TreatmentType) Value() (driver.Value, error) { return jsonValue(t) }

func (t *TreatmentType) Scan(src interface{}) error { return scanJSON(src, t) }

type DiagnosticKind string

const (
	DiagnosticChromosomicSyndrome DiagnosticKind = "ChromosomicSyndrome"
	DiagnosticRespiratory         DiagnosticKind = "Respiratory"
	DiagnosticCardiac             DiagnosticKind = "Cardiac"
	DiagnosticSnc                 DiagnosticKind = "Snc"
	DiagnosticUrologic            DiagnosticKind = "Urologic"
	DiagnosticMetabolicIllness    DiagnosticKind = "MetabolicIllness"
	DiagnosticDigestive           DiagnosticKind = "Digestive"
	DiagnosticPremature           DiagnosticKind = "Premature"
	DiagnosticOther               DiagnosticKind = "Other"
)

type CardiacDiagnostic string

const (
	CardiacCyanogenic CardiacDiagnostic = "Cyanogenic"
	CardiacOther      CardiacDiagnostic = "Other"
)

var validCardiac = map[CardiacDiagnostic]bool{CardiacCyanogenic: true, CardiacOther: true}

type SncDiagnostic string

const (
	SncMalformative SncDiagnostic = "Malformative"
	SncAcquired     SncDiagnostic = "Acquired"
	SncTrauma       SncDiagnostic = "Trauma"
)

var validSnc = map[SncDiagnostic]bool{SncMalformative: true, SncAcquired: true, SncTrauma: true}

// Diagnostic is one of nine categorized conditions. Only the field matching
// Kind is meaningful: Text for ChromosomicSyndrome, Digestive, Premature and
// Other; RespiratorySupport for Respiratory; Cardiac and Snc for their kinds.
type Diagnostic struct {
	Kind               DiagnosticKind
	Text               string
	RespiratorySupport bool
	Cardiac            CardiacDiagnostic
	Snc                SncDiagnostic
}

func ChromosomicSyndrome(text string) Diagnostic {
	return Diagnostic{Kind: DiagnosticChromosomicSyndrome, Text: text}
}

func Respiratory(withSupport bool) Diagnostic {
	return Diagnostic{Kind: DiagnosticRespiratory, RespiratorySupport: withSupport}
}

func Cardiac(c CardiacDiagnostic) Diagnostic {
	return Diagnostic{Kind: DiagnosticCardiac, Cardiac: c}
}

func Snc(s SncDiagnostic) Diagnostic { return Diagnostic{Kind: DiagnosticSnc, Snc: s} }

func Urologic() Diagnostic         { return Diagnostic{Kind: DiagnosticUrologic} }
func MetabolicIllness() Diagnostic { return Diagnostic{Kind: DiagnosticMetabolicIllness} }

func Digestive(text string) Diagnostic {
	return Diagnostic{Kind: DiagnosticDigestive, Text: text}
}

func Premature(text string) Diagnostic {
	return Diagnostic{Kind: DiagnosticPremature, Text: text}
}

func Other(text string) Diagnostic { return Diagnostic{Kind: DiagnosticOther, Text: text} }

func (d Diagnostic) MarshalJSON() ([]byte, error) {
	var content interface{}
	switch d.Kind {
	case DiagnosticChromosomicSyndrome, DiagnosticDigestive, DiagnosticPremature, DiagnosticOther:
		content = d.Text
	case DiagnosticRespiratory:
		content = d.RespiratorySupport
	case DiagnosticCardiac:
		if !validCardiac[d.Cardiac] {
			return nil, fmt.Errorf("unknown cardiac diagnostic %q", d.Cardiac)
		}
		content = d.Cardiac
	case DiagnosticSnc:
		if !validSnc[d.Snc] {
			return nil, fmt.Errorf("unknown snc diagnostic %q", d.Snc)
		}
		content = d.Snc
	case DiagnosticUrologic, DiagnosticMetabolicIllness:
	default:
		return nil, fmt.Errorf("unknown diagnostic %q", d.Kind)
	}
	return marshalTagged(string(d.Kind), content)
}

func (d *Diagnostic) UnmarshalJSON(data []byte) error {
	var in taggedIn
	if err := decodeTagged(data, &in); err != nil {
		return fmt.Errorf("diagnostic: %w", err)
	}

	kind := DiagnosticKind(in.T)
	out := Diagnostic{Kind: kind}
	switch kind {
	case DiagnosticChromosomicSyndrome, DiagnosticDigestive, DiagnosticPremature, DiagnosticOther:
		if in.hasContent() {
			if err := json.Unmarshal(in.C, &out.Text); err != nil {
				return fmt.Errorf("diagnostic %s: %w", kind, err)
			}
		}
	case DiagnosticRespiratory:
		if in.hasContent() {
			if err := json.Unmarshal(in.C, &out.RespiratorySupport); err != nil {
				return fmt.Errorf("diagnostic %s: %w", kind, err)
			}
		}
	case DiagnosticCardiac:
		if err := json.Unmarshal(in.C, &out.Cardiac); err != nil || !validCardiac[out.Cardiac] {
			return fmt.Errorf("diagnostic %s: unknown variant %s", kind, in.C)
		}
	case DiagnosticSnc:
		if err := json.Unmarshal(in.C, &out.Snc); err != nil || !validSnc[out.Snc] {
			return fmt.Errorf("diagnostic %s: unknown variant %s", kind, in.C)
		}
	case DiagnosticUrologic, DiagnosticMetabolicIllness:
	default:
		return fmt.Errorf("diagnostic: unknown variant %q", in.T)
	}

	*d = out
	return nil
}

func (d Diagnostic) Value() (driver.Value, error) { return jsonValue(d) }

func (d *Diagnostic) Scan(src interface{}) error { return scanJSON(src, d) }

// Patient is one case record. ID is assigned by the database.
type Patient struct {
	ID                  int64               `json:"id"`
	PrescriptionYear    int64               `json:"prescriptionYear"`
	TreatmentDuration   int64               `json:"treatmentDuration"`
	PrescriptionService PrescriptionService `json:"prescriptionService"`
	PrescriptionCount   int64               `json:"prescriptionCount"`
	TreatmentType       TreatmentType       `json:"treatmentType"`
	Diagnostic          Diagnostic          `json:"diagnostic"`

	Name                    string  `json:"name"`
	Age                     float64 `json:"age"`
	Sex                     Sex     `json:"sex"`
	Weight                  float64 `json:"weight"`
	Height                  float64 `json:"height"`
	CranialPerimeter        float64 `json:"cranialPerimeter"`
	HadEvaluationNutriState bool    `json:"hadEvaluationNutriState"`
	WeightZScore            float64 `json:"weightZScore"`
	HeightZScore            float64 `json:"heightZScore"`
	CranialPerimeterZScore  float64 `json:"cranialPerimeterZScore"`
	BMI                     float64 `json:"bmi"`
}

// requiredFields lists the keys a submitted record must carry. id and bmi are
// assigned server-side.
var requiredFields = []string{
	"prescriptionYear", "treatmentDuration", "prescriptionService", "prescriptionCount",
	"treatmentType", "diagnostic", "name", "age", "sex", "weight", "height",
	"cranialPerimeter", "hadEvaluationNutriState", "weightZScore", "heightZScore",
	"cranialPerimeterZScore",
}

func (p *Patient) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var missing []string
	for _, f := range requiredFields {
		if raw, ok := fields[f]; !ok || bytes.Equal(raw, []byte("null")) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing field(s): %v", missing)
	}

	type plain Patient
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*p = Patient(out)
	return nil
}

// PatientName is the {id, name} pair used by the selection lists.
type PatientName struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ComputeBMI returns 10 * weight / height², with weight in kilograms and
// height in centimetres. Non-positive measurements give 0.
func ComputeBMI(weight, height float64) float64 {
	if weight <= 0 || height <= 0 {
		return 0
	}
	return 10 * weight / (height * height)
}

type taggedOut struct {
	T string          `json:"t"`
	C json.RawMessage `json:"c,omitempty"`
}

func marshalTagged(tag string, content interface{}) ([]byte, error) {
	out := taggedOut{T: tag}
	if content != nil {
		c, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		out.C = c
	}
	return json.Marshal(out)
}

type taggedIn struct {
	T string          `json:"t"`
	C json.RawMessage `json:"c"`
}

func (in taggedIn) hasContent() bool {
	return len(in.C) > 0 && !bytes.Equal(in.C, []byte("null"))
}

func decodeTagged(data []byte, in *taggedIn) error {
	if err := json.Unmarshal(data, in); err != nil {
		return err
	}
	if in.T == "" {
		return fmt.Errorf("missing tag \"t\"")
	}
	return nil
}

func unmarshalCode[T ~string](data []byte, dst *T, valid map[T]bool, what string) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if !valid[T(s)] {
		return fmt.Errorf("unknown %s %q", what, s)
	}
	*dst = T(s)
	return nil
}

func jsonValue(v json.Marshaler) (driver.Value, error) {
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src interface{}, dst json.Unmarshaler) error {
	switch v := src.(type) {
	case []byte:
		return dst.UnmarshalJSON(v)
	case string:
		return dst.UnmarshalJSON([]byte(v))
	case nil:
		return fmt.Errorf("cannot scan NULL into %T", dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
}
