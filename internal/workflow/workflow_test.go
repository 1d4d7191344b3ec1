package workflow

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func strs(values ...string) []cty.Value {
	out := make([]cty.Value, len(values))
	for i, v := range values {
		out[i] = cty.StringVal(v)
	}
	return out
}

func instanceIDs(p *Plan) []string {
	ids := make([]string, len(p.Instances))
	for i, inst := range p.Instances {
		ids[i] = inst.ID
	}
	return ids
}

// subjectModelWorkflow mirrors the shape of the connectome pipeline: an
// iterated subject source, a nested preprocessing workflow, an iterated model
// and a join over a hemisphere iterable.
func subjectModelWorkflow() *Workflow {
	wf := New("connectome")
	wf.AddNode("infosource", "identity", nil).Iterate("subject_id", strs("sub-01", "sub-02")...)
	wf.AddNode("selectfiles", "selectfiles", map[string]cty.Value{"base_directory": cty.StringVal("/data")})

	pre := New("dwi_preproc")
	pre.AddNode("inputnode", "identity", nil)
	pre.AddNode("bet", "fsl_bet", nil)
	pre.Connect("inputnode", "dwi", "bet", "in_file")
	wf.AddWorkflow(pre)

	wf.AddNode("tractography", "cnx_tractography", nil).Iterate("model", strs("CSA", "CSD")...)
	wf.AddNode("sxfm", "fs_surf2surf", nil).Iterate("hemi", strs("lh", "rh")...)
	wf.AddNode("aparc2aseg", "fs_aparc2aseg", nil).JoinOver("sxfm", "annot_files")

	wf.Connect("infosource", "subject_id", "selectfiles", "subject_id")
	wf.Connect("selectfiles", "dwi", "dwi_preproc.inputnode", "dwi")
	wf.Connect("dwi_preproc.bet", "out_file", "tractography", "in_file")
	wf.Connect("infosource", "subject_id", "sxfm", "subject_id")
	wf.Connect("sxfm", "out_file", "aparc2aseg", "annot_files")
	return wf
}

func TestExpand_IterablesAndNesting(t *testing.T) {
	// Arrange
	wf := subjectModelWorkflow()

	// Act
	plan, err := wf.Expand()

	// Assert
	require.NoError(t, err)
	want := []string{
		"connectome/_subject_id_sub-01/infosource",
		"connectome/_subject_id_sub-02/infosource",
		"connectome/_subject_id_sub-01/selectfiles",
		"connectome/_subject_id_sub-02/selectfiles",
		"connectome/_subject_id_sub-01/dwi_preproc/inputnode",
		"connectome/_subject_id_sub-02/dwi_preproc/inputnode",
		"connectome/_subject_id_sub-01/dwi_preproc/bet",
		"connectome/_subject_id_sub-02/dwi_preproc/bet",
		"connectome/_subject_id_sub-01/_model_CSA/tractography",
		"connectome/_subject_id_sub-01/_model_CSD/tractography",
		"connectome/_subject_id_sub-02/_model_CSA/tractography",
		"connectome/_subject_id_sub-02/_model_CSD/tractography",
		"connectome/_subject_id_sub-01/_hemi_lh/sxfm",
		"connectome/_subject_id_sub-01/_hemi_rh/sxfm",
		"connectome/_subject_id_sub-02/_hemi_lh/sxfm",
		"connectome/_subject_id_sub-02/_hemi_rh/sxfm",
		"connectome/_subject_id_sub-01/aparc2aseg",
		"connectome/_subject_id_sub-02/aparc2aseg",
	}
	if diff := cmp.Diff(want, instanceIDs(plan)); diff != "" {
		t.Fatalf("instance IDs mismatch (-want +got):\n%s", diff)
	}

	info, ok := plan.Instance("connectome/_subject_id_sub-02/infosource")
	require.True(t, ok)
	assert.Equal(t, "sub-02", info.Inputs["subject_id"].AsString())

	tract, ok := plan.Instance("connectome/_subject_id_sub-01/_model_CSD/tractography")
	require.True(t, ok)
	assert.Equal(t, "CSD", tract.Inputs["model"].AsString())
	subject, ok := tract.Param("subject_id")
	require.True(t, ok)
	assert.Equal(t, "sub-01", subject.AsString())
	assert.Equal(t, []Link{{
		SrcID:     "connectome/_subject_id_sub-01/dwi_preproc/bet",
		SrcOutput: "out_file",
		DstInput:  "in_file",
		JoinIndex: -1,
	}}, tract.Links)

	sel, ok := plan.Instance("connectome/_subject_id_sub-01/selectfiles")
	require.True(t, ok)
	assert.Equal(t, "/data", sel.Inputs["base_directory"].AsString())
	assert.Equal(t, []string{"connectome/_subject_id_sub-01/infosource"}, sel.Deps)
}

func TestExpand_JoinCollapsesAxis(t *testing.T) {
	plan, err := subjectModelWorkflow().Expand()
	require.NoError(t, err)

	join, ok := plan.Instance("connectome/_subject_id_sub-02/aparc2aseg")
	require.True(t, ok)

	assert.Equal(t, []Link{
		{SrcID: "connectome/_subject_id_sub-02/_hemi_lh/sxfm", SrcOutput: "out_file", DstInput: "annot_files", JoinIndex: 0},
		{SrcID: "connectome/_subject_id_sub-02/_hemi_rh/sxfm", SrcOutput: "out_file", DstInput: "annot_files", JoinIndex: 1},
	}, join.Links)
	assert.True(t, join.IsJoinField("annot_files"))
	require.Len(t, join.Params, 1)
	assert.Equal(t, "subject_id", join.Params[0].Field)
}

func TestExpand_GraphMatchesLinks(t *testing.T) {
	plan, err := subjectModelWorkflow().Expand()
	require.NoError(t, err)

	g, err := plan.Graph()
	require.NoError(t, err)
	assert.Equal(t, len(plan.Instances), g.Len())

	deps, err := g.Dependencies("connectome/_subject_id_sub-01/aparc2aseg")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"connectome/_subject_id_sub-01/_hemi_lh/sxfm",
		"connectome/_subject_id_sub-01/_hemi_rh/sxfm",
	}, deps)
}

func TestExpand_NumericIterables(t *testing.T) {
	wf := New("wf")
	wf.AddNode("calc", "cnx_calc_matrix", nil).Iterate("threshold", cty.NumberIntVal(0), cty.NumberIntVal(10))

	plan, err := wf.Expand()

	require.NoError(t, err)
	assert.Equal(t, []string{"wf/_threshold_0/calc", "wf/_threshold_10/calc"}, instanceIDs(plan))
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		build   func() *Workflow
		wantErr string
	}{
		{
			name: "unknown source",
			build: func() *Workflow {
				wf := New("wf")
				wf.AddNode("b", "t", nil)
				wf.Connect("a", "out", "b", "in")
				return wf
			},
			wantErr: "unknown source node 'a'",
		},
		{
			name: "unknown nested destination",
			build: func() *Workflow {
				wf := New("wf")
				wf.AddNode("a", "t", nil)
				wf.Connect("a", "out", "sub.b", "in")
				return wf
			},
			wantErr: "unknown destination node 'sub.b'",
		},
		{
			name: "input fed twice",
			build: func() *Workflow {
				wf := New("wf")
				wf.AddNode("a", "t", nil)
				wf.AddNode("b", "t", nil)
				wf.AddNode("c", "t", nil)
				wf.Connect("a", "out", "c", "in")
				wf.Connect("b", "out", "c", "in")
				return wf
			},
			wantErr: "input 'in' of 'c' is fed by both",
		},
		{
			name: "set and connected",
			build: func() *Workflow {
				wf := New("wf")
				wf.AddNode("a", "t", nil)
				wf.AddNode("b", "t", map[string]cty.Value{"in": cty.StringVal("x")})
				wf.Connect("a", "out", "b", "in")
				return wf
			},
			wantErr: "is both set and connected",
		},
		{
			name: "duplicate node",
			build: func() *Workflow {
				wf := New("wf")
				wf.AddNode("a", "t", nil)
				wf.AddNode("a", "t", nil)
				return wf
			},
			wantErr: "duplicate node name 'a'",
		},
		{
			name: "invalid node name",
			build: func() *Workflow {
				wf := New("wf")
				wf.AddNode("a.b", "t", nil)
				return wf
			},
			wantErr: "invalid name",
		},
		{
			name: "cycle",
			build: func() *Workflow {
				wf := New("wf")
				wf.AddNode("a", "t", nil)
				wf.AddNode("b", "t", nil)
				wf.Connect("a", "out", "b", "in")
				wf.Connect("b", "out", "a", "in")
				return wf
			},
			wantErr: "cycle detected",
		},
		{
			name: "join source without iterables",
			build: func() *Workflow {
				wf := New("wf")
				wf.AddNode("a", "t", nil)
				wf.AddNode("b", "t", nil).JoinOver("a", "in")
				wf.Connect("a", "out", "b", "in")
				return wf
			},
			wantErr: "has no iterables",
		},
		{
			name: "empty iterable",
			build: func() *Workflow {
				wf := New("wf")
				wf.AddNode("a", "t", nil).Iterate("x")
				return wf
			},
			wantErr: "has no values",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.build().Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestExpand_JoinErrors(t *testing.T) {
	t.Run("join source not upstream", func(t *testing.T) {
		wf := New("wf")
		wf.AddNode("src", "t", nil).Iterate("hemi", strs("lh", "rh")...)
		wf.AddNode("other", "t", nil)
		wf.AddNode("join", "t", nil).JoinOver("src", "in")
		wf.Connect("other", "out", "join", "in")

		_, err := wf.Expand()
		assert.ErrorContains(t, err, "is not upstream")
	})

	t.Run("joined input must be a join field", func(t *testing.T) {
		wf := New("wf")
		wf.AddNode("src", "t", nil).Iterate("hemi", strs("lh", "rh")...)
		wf.AddNode("join", "t", nil).JoinOver("src", "files")
		wf.Connect("src", "out", "join", "other")

		_, err := wf.Expand()
		assert.ErrorContains(t, err, "is not a join field")
	})
}

func TestWriteDOT(t *testing.T) {
	wf := subjectModelWorkflow()

	var declared bytes.Buffer
	require.NoError(t, wf.WriteDOT(&declared))
	assert.Contains(t, declared.String(), `digraph "connectome" {`)
	assert.Contains(t, declared.String(), `"dwi_preproc.bet" -> "tractography" [label="out_file -> in_file"];`)

	plan, err := wf.Expand()
	require.NoError(t, err)
	var expanded bytes.Buffer
	require.NoError(t, plan.WriteDOT(&expanded))
	assert.Contains(t, expanded.String(),
		`"connectome/_subject_id_sub-01/_hemi_rh/sxfm" -> "connectome/_subject_id_sub-01/aparc2aseg";`)
}
