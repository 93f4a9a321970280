package stepinput

import (
	"reflect"
	"testing"

	"github.com/me/ilcdirac/pkg/model"
)

func testWorkflow() *model.Workflow {
	mokka := &model.Step{
		Name: "MokkaStep1", Kind: model.KindMokka, Index: 1,
		Parameters: []model.Parameter{
			{Name: "outputFile", Type: model.TypeString, Default: "", Value: model.Literal("sim.slcio")},
			{Name: "numberOfEvents", Type: model.TypeInt, Default: 0, Value: model.Literal(100)},
		},
	}
	marlin := &model.Step{
		Name: "MarlinStep2", Kind: model.KindMarlin, Index: 2,
		Parameters: []model.Parameter{
			{Name: "applicationVersion", Type: model.TypeString, Default: "", Value: model.Literal("v0111")},
			{Name: "inputSlcio", Type: model.TypeList, Default: []string{}, Value: model.LinkTo("MokkaStep1", "outputFile")},
			{Name: "EvtsToProcess", Type: model.TypeInt, Default: -1, Value: model.LinkTo("MokkaStep1", "numberOfEvents")},
			{Name: "debug", Type: model.TypeBool, Default: false},
			{Name: "outputFile", Type: model.TypeString, Default: ""},
		},
	}
	return &model.Workflow{Name: "t", Steps: []*model.Step{mokka, marlin}, StepCount: 2}
}

func TestResolveStep_FromBindings(t *testing.T) {
	wf := testWorkflow()
	got, err := ResolveStep(wf, wf.Steps[1], Ledger{})
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}
	want := map[string]any{
		"applicationVersion": "v0111",
		"inputSlcio":         []string{"sim.slcio"},
		"EvtsToProcess":      100,
		"debug":              false,
		"outputFile":         "",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("resolved = %#v\nwant %#v", got, want)
	}
}

func TestResolveStep_LedgerWins(t *testing.T) {
	wf := testWorkflow()
	ledger := Ledger{}
	ledger.Record("MokkaStep1", map[string]any{"outputFile": "Mokka_v01_1.slcio"})
	ledger.Record("MokkaStep1", map[string]any{"numberOfEvents": 95})

	got, err := ResolveStep(wf, wf.Steps[1], ledger)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got["inputSlcio"], []string{"Mokka_v01_1.slcio"}) {
		t.Errorf("inputSlcio = %v", got["inputSlcio"])
	}
	if got["EvtsToProcess"] != 95 {
		t.Errorf("EvtsToProcess = %v", got["EvtsToProcess"])
	}
}

func TestResolveSource_Chained(t *testing.T) {
	wf := testWorkflow()
	wf.Steps = append(wf.Steps, &model.Step{
		Name: "LCSIMStep3", Index: 3,
		Parameters: []model.Parameter{
			{Name: "EvtsToProcess", Type: model.TypeInt, Value: model.LinkTo("MarlinStep2", "EvtsToProcess")},
		},
	})
	v, err := ResolveSource(wf, model.Link{Step: "LCSIMStep3", Param: "EvtsToProcess"}, Ledger{})
	if err != nil {
		t.Fatal(err)
	}
	if v != 100 {
		t.Errorf("chained link = %v, want 100", v)
	}
}

func TestResolveSource_Unresolved(t *testing.T) {
	wf := testWorkflow()
	tests := []model.Link{
		{Step: "SLICStep7", Param: "outputFile"},
		{Step: "MokkaStep1", Param: "nosuch"},
	}
	for _, l := range tests {
		_, err := ResolveSource(wf, l, Ledger{})
		if !model.IsCode(err, model.ErrUnresolvedLink) {
			t.Errorf("%s: err = %v, want UNRESOLVED_LINK", l, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		typ  model.ParamType
		in   any
		want any
		err  bool
	}{
		{"json int", model.TypeInt, float64(12), 12, false},
		{"nil int", model.TypeInt, nil, 0, false},
		{"bad int", model.TypeInt, "many", nil, true},
		{"bool", model.TypeBool, true, true, false},
		{"bad bool", model.TypeBool, 1, nil, true},
		{"yaml list", model.TypeList, []any{"a", "b"}, []string{"a", "b"}, false},
		{"joined list", model.TypeList, "a; b;", []string{"a", "b"}, false},
		{"empty list", model.TypeList, "", []string{}, false},
		{"list to string", model.TypeString, []string{"a", "b"}, "a;b", false},
		{"int to string", model.TypeString, 5, "5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.typ, tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v", err)
			}
			if !tt.err && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize = %#v, want %#v", got, tt.want)
			}
		})
	}
}
