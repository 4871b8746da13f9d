// Package pb defines the Detector wire contract. Messages travel as google.protobuf.Struct
// so no code generation step is needed; the field names below are the contract.
package pb

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Struct field names
const (
	FieldPath      = "path"
	FieldFake      = "fake"
	FieldMatches   = "matches"
	FieldElapsedMs = "elapsed_ms"
	FieldCheckedAt = "checked_at"
	FieldState     = "state"
	FieldDir       = "dir"
	FieldEntries   = "entries"
	FieldPaths     = "paths"
)

// Verdict is the wire form of a check result.
type Verdict struct {
	Path      string    `json:"path"`
	Fake      bool      `json:"fake"`
	Matches   []string  `json:"matches"`
	ElapsedMs int64     `json:"elapsed_ms"`
	CheckedAt time.Time `json:"checked_at"`
}

// IndexStatus is the wire form of the reference index state.
type IndexStatus struct {
	State   string `json:"state"`
	Dir     string `json:"dir"`
	Entries int    `json:"entries"`
	Paths   int    `json:"paths"`
}

// NewCheckRequest builds a Check request for path.
func NewCheckRequest(path string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldPath: structpb.NewStringValue(path),
	}}
}

// PathFromRequest reads the video path of a Check request.
func PathFromRequest(req *structpb.Struct) (string, error) {
	v, ok := req.GetFields()[FieldPath]
	if !ok {
		return "", fmt.Errorf("missing %q", FieldPath)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || s.StringValue == "" {
		return "", fmt.Errorf("%q must be a non-empty string", FieldPath)
	}
	return s.StringValue, nil
}

// ToStruct encodes v.
func (v Verdict) ToStruct() *structpb.Struct {
	matches := make([]*structpb.Value, len(v.Matches))
	for i, m := range v.Matches {
		matches[i] = structpb.NewStringValue(m)
	}
	fields := map[string]*structpb.Value{
		FieldPath:      structpb.NewStringValue(v.Path),
		FieldFake:      structpb.NewBoolValue(v.Fake),
		FieldMatches:   structpb.NewListValue(&structpb.ListValue{Values: matches}),
		FieldElapsedMs: structpb.NewNumberValue(float64(v.ElapsedMs)),
	}
	if !v.CheckedAt.IsZero() {
		fields[FieldCheckedAt] = structpb.NewStringValue(v.CheckedAt.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}

// VerdictFromStruct decodes a Check response.
func VerdictFromStruct(s *structpb.Struct) (Verdict, error) {
	f := s.GetFields()
	if _, ok := f[FieldFake]; !ok {
		return Verdict{}, fmt.Errorf("missing %q", FieldFake)
	}
	v := Verdict{
		Path:      f[FieldPath].GetStringValue(),
		Fake:      f[FieldFake].GetBoolValue(),
		ElapsedMs: int64(f[FieldElapsedMs].GetNumberValue()),
		Matches:   []string{},
	}
	for _, m := range f[FieldMatches].GetListValue().GetValues() {
		v.Matches = append(v.Matches, m.GetStringValue())
	}
	if ts := f[FieldCheckedAt].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Verdict{}, fmt.Errorf("%q: %w", FieldCheckedAt, err)
		}
		v.CheckedAt = t
	}
	return v, nil
}

// ToStruct encodes s.
func (s IndexStatus) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldState:   structpb.NewStringValue(s.State),
		FieldDir:     structpb.NewStringValue(s.Dir),
		FieldEntries: structpb.NewNumberValue(float64(s.Entries)),
		FieldPaths:   structpb.NewNumberValue(float64(s.Paths)),
	}}
}

// IndexStatusFromStruct decodes an IndexStatus response.
func IndexStatusFromStruct(s *structpb.Struct) IndexStatus {
	f := s.GetFields()
	return IndexStatus{
		State:   f[FieldState].GetStringValue(),
		Dir:     f[FieldDir].GetStringValue(),
		Entries: int(f[FieldEntries].GetNumberValue()),
		Paths:   int(f[FieldPaths].GetNumberValue()),
	}
}
