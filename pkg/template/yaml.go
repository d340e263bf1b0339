package template

import "gopkg.in/yaml.v2"

// rawMessageTemplate mirrors one message/<type>.yml document. The resource
// list is a YAML sequence, so declaration order survives decoding without
// any extra bookkeeping.
type rawMessageTemplate struct {
	Resources []rawResourceEntry `yaml:"resources"`
}

type rawResourceEntry struct {
	ResourceName       string   `yaml:"resourceName"`
	Segment            string   `yaml:"segment"`
	ResourcePath       string   `yaml:"resourcePath"`
	Repeats            bool     `yaml:"repeats"`
	IsReferenced       bool     `yaml:"isReferenced"`
	AdditionalSegments []string `yaml:"additionalSegments"`
}

// rawResourceTemplate mirrors one resource/<name>.yml or datatype/<name>.yml
// document. Fields is decoded as a yaml.MapSlice rather than a Go map so
// that the field order declared in the YAML document — which §4.3 requires
// to be the observable evaluation and emission order — survives decoding;
// a plain map[string]interface{} would randomize that order.
type rawResourceTemplate struct {
	ResourceType string        `yaml:"resourceType"`
	Fields       yaml.MapSlice `yaml:"fields"`
}

type rawFieldExpr struct {
	Type           string        `yaml:"type"`
	ExpressionType string        `yaml:"expressionType"`
	GenerateList   bool          `yaml:"generateList"`
	ValueOf        string        `yaml:"valueOf"`
	Specs          string        `yaml:"specs"`
	Vars           yaml.MapSlice `yaml:"vars"`
}

// remarshal round-trips a decoded yaml.MapSlice item's value through the
// YAML encoder so it can be decoded again into a concrete struct. This is
// the standard way to recover typed values from underneath an
// order-preserving yaml.v2 MapSlice.
func remarshal(v interface{}, out interface{}) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

func decodeMessageTemplate(name string, raw []byte) (*MessageTemplate, error) {
	var rm rawMessageTemplate
	if err := yaml.Unmarshal(raw, &rm); err != nil {
		return nil, &LoadError{Path: name, Reason: "yaml parse: " + err.Error()}
	}
	mt := &MessageTemplate{Name: name}
	for _, r := range rm.Resources {
		if r.ResourceName == "" || r.Segment == "" {
			return nil, &LoadError{Path: name, Reason: "resource entry missing resourceName or segment"}
		}
		mt.Entries = append(mt.Entries, &ResourceEntry{
			ResourceName:       r.ResourceName,
			Segment:            r.Segment,
			ResourcePath:       r.ResourcePath,
			Repeats:            r.Repeats,
			IsReferenced:       r.IsReferenced,
			AdditionalSegments: r.AdditionalSegments,
		})
	}
	return mt, nil
}

func decodeResourceTemplate(path string, raw []byte) (*ResourceTemplate, error) {
	var rt rawResourceTemplate
	if err := yaml.Unmarshal(raw, &rt); err != nil {
		return nil, &LoadError{Path: path, Reason: "yaml parse: " + err.Error()}
	}
	out := &ResourceTemplate{ResourceType: rt.ResourceType, Path: path}
	for _, item := range rt.Fields {
		name, ok := item.Key.(string)
		if !ok {
			return nil, &LoadError{Path: path, Reason: "non-string field name"}
		}
		var raw rawFieldExpr
		if err := remarshal(item.Value, &raw); err != nil {
			return nil, &LoadError{Path: path, Reason: "field " + name + ": " + err.Error()}
		}
		expr, err := decodeExpression(path, name, raw)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, FieldSpec{Name: name, Expr: expr})
	}
	return out, nil
}

func decodeExpression(path, fieldName string, raw rawFieldExpr) (*Expression, error) {
	et := ExpressionType(raw.ExpressionType)
	switch et {
	case ExprHL7Spec, ExprJEXL, ExprResource, ExprRef:
	default:
		return nil, &LoadError{Path: path, Reason: "field " + fieldName + ": unknown expressionType " + raw.ExpressionType}
	}
	if et == ExprResource && raw.Specs == "" {
		return nil, &LoadError{Path: path, Reason: "field " + fieldName + ": expressionType Resource requires specs"}
	}
	expr := &Expression{
		Type:         et,
		OutputType:   FieldType(raw.Type),
		GenerateList: raw.GenerateList,
		ValueOf:      raw.ValueOf,
		Specs:        raw.Specs,
	}
	for _, item := range raw.Vars {
		name, ok := item.Key.(string)
		if !ok {
			return nil, &LoadError{Path: path, Reason: "field " + fieldName + ": non-string var name"}
		}
		var vraw rawFieldExpr
		if err := remarshal(item.Value, &vraw); err != nil {
			return nil, &LoadError{Path: path, Reason: "field " + fieldName + " var " + name + ": " + err.Error()}
		}
		vexpr, err := decodeExpression(path, fieldName+"."+name, vraw)
		if err != nil {
			return nil, err
		}
		expr.Vars = append(expr.Vars, VarBinding{Name: name, Type: FieldType(vraw.Type), Expr: vexpr})
	}
	return expr, nil
}
