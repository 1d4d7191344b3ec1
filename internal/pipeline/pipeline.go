package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/vk/connectome/internal/layout"
	"github.com/vk/connectome/internal/workflow"
	"github.com/zclconf/go-cty/cty"
)

func str(s string) cty.Value { return cty.StringVal(s) }

func strs(values []string) []cty.Value {
	out := make([]cty.Value, len(values))
	for i, v := range values {
		out[i] = cty.StringVal(v)
	}
	return out
}

func nums(values []float64) []cty.Value {
	out := make([]cty.Value, len(values))
	for i, v := range values {
		out[i] = cty.NumberFloatVal(v)
	}
	return out
}

// T1Preproc crops, denoises and skull-strips the T1 image, then runs the
// three recon-all stages with the external skull strip and converts the
// results to NIfTI next to FreeSurfer's own volumes.
//
// inputnode: subject_id, T1. outputnode: subject_id, subjects_dir, wm, T1,
// brainmask.
func T1Preproc(opts Options) *workflow.Workflow {
	wf := workflow.New("t1_preproc")

	wf.AddNode("inputnode", "identity", map[string]cty.Value{
		"template_directory": str(opts.TemplateDirectory),
	})
	wf.AddNode("robustfov", "fsl_robustfov", nil)
	wf.AddNode("T1_denoise", "dipy_denoise", map[string]cty.Value{"t1": cty.True})
	wf.AddNode("brainextraction", "fsl_bet", nil)
	wf.AddNode("autorecon1", "fs_recon_all", map[string]cty.Value{
		"directive":    str("autorecon1"),
		"noskullstrip": cty.True,
		"subjects_dir": str(opts.Layout.SubjectsDir),
	})
	wf.AddNode("rename", "fsrename", nil)
	wf.AddNode("autorecon2", "fs_recon_all", map[string]cty.Value{"directive": str("autorecon2")})
	wf.AddNode("autorecon3", "fs_recon_all", map[string]cty.Value{"directive": str("autorecon3")})
	wf.AddNode("wm_convert", "fs_mri_convert", map[string]cty.Value{
		"out_name": str("wm.nii"),
		"out_type": str("nii"),
	})
	wf.AddNode("T1_convert", "fs_mri_convert", map[string]cty.Value{
		"out_name": str("T1.nii.gz"),
		"out_type": str("niigz"),
	})
	wf.AddNode("mask_convert", "fs_mri_convert", map[string]cty.Value{
		"out_name": str("brainmask.nii.gz"),
		"out_type": str("niigz"),
	})
	wf.AddNode("outputnode", "identity", nil)

	wf.Connect("inputnode", "T1", "robustfov", "in_file")
	wf.Connect("robustfov", "out_roi", "T1_denoise", "in_file")
	wf.Connect("T1_denoise", "out_file", "brainextraction", "in_file")
	wf.Connect("brainextraction", "out_file", "autorecon1", "T1_file")
	wf.Connect("inputnode", "subject_id", "autorecon1", "subject_id")

	// The brain mask must be in place before autorecon2 starts.
	wf.Connect("autorecon1", "subject_id", "rename", "subject_id")
	wf.Connect("autorecon1", "subjects_dir", "rename", "subjects_dir")
	wf.Connect("rename", "subject_id", "autorecon2", "subject_id")
	wf.Connect("rename", "subjects_dir", "autorecon2", "subjects_dir")
	wf.Connect("autorecon2", "subject_id", "autorecon3", "subject_id")
	wf.Connect("autorecon2", "subjects_dir", "autorecon3", "subjects_dir")

	wf.Connect("autorecon3", "wm", "wm_convert", "in_file")
	wf.Connect("autorecon3", "T1", "T1_convert", "in_file")
	wf.Connect("autorecon3", "brainmask", "mask_convert", "in_file")

	wf.Connect("autorecon3", "subject_id", "outputnode", "subject_id")
	wf.Connect("autorecon3", "subjects_dir", "outputnode", "subjects_dir")
	wf.Connect("wm_convert", "out_file", "outputnode", "wm")
	wf.Connect("T1_convert", "out_file", "outputnode", "T1")
	wf.Connect("mask_convert", "out_file", "outputnode", "brainmask")
	return wf
}

// DWIPreproc extracts b0, masks it, corrects eddy currents, denoises, fits
// the tensor and derives AD and RD. Results are renamed after the subject
// and copied to `_subject_id_<id>/dwi_preproc/preprocessed`.
//
// inputnode: subject_id, dwi, bvecs, bvals. outputnode: dwi, b0, mask, FA,
// MD, AD, RD.
func DWIPreproc(opts Options) *workflow.Workflow {
	wf := workflow.New("dwi_preproc")

	wf.AddNode("inputnode", "identity", nil)
	wf.AddNode("extract_b0", "fsl_roi", map[string]cty.Value{
		"t_min":  cty.NumberIntVal(0),
		"t_size": cty.NumberIntVal(1),
	})
	wf.AddNode("bet", "fsl_bet", map[string]cty.Value{
		"frac":      cty.NumberFloatVal(0.3),
		"robust":    cty.False,
		"mask":      cty.True,
		"no_output": cty.False,
	})
	eddy := wf.AddNode("eddy", "fsl_eddy", map[string]cty.Value{"verbose": cty.True})
	if opts.AcquisitionParameters != "" {
		eddy.Set("in_acqp", str(opts.AcquisitionParameters))
	}
	if opts.IndexFile != "" {
		eddy.Set("in_index", str(opts.IndexFile))
	}
	wf.AddNode("dwi_denoise", "dipy_denoise", nil)
	wf.AddNode("dtifit", "fsl_dtifit", nil)
	wf.AddNode("get_ad", "fsl_maths_copy", map[string]cty.Value{"out_name": str("AD")})
	wf.AddNode("get_rd", "fsl_maths_mean2", map[string]cty.Value{"out_name": str("RD")})

	renames := []struct{ node, suffix, src, output string }{
		{"dwi_rename", "dwi", "dwi_denoise", "out_file"},
		{"b0_rename", "b0", "bet", "out_file"},
		{"mask_rename", "mask", "bet", "mask_file"},
		{"AD_rename", "AD", "get_ad", "out_file"},
		{"RD_rename", "RD", "get_rd", "out_file"},
	}
	for _, r := range renames {
		wf.AddNode(r.node, "rename", map[string]cty.Value{
			"format_string": str("{subject_id}_" + r.suffix),
			"keep_ext":      cty.True,
		})
		wf.Connect(r.src, r.output, r.node, "in_file")
		wf.Connect("inputnode", "subject_id", r.node, "subject_id")
	}

	wf.AddNode("sink_files", "merge", nil)
	wf.AddNode("datasink", "datasink", map[string]cty.Value{
		"base_directory": str(opts.Layout.BaseDir),
		"container":      str("_subject_id_{subject_id}/dwi_preproc/preprocessed"),
	})
	wf.AddNode("published", "split", nil)
	wf.AddNode("outputnode", "identity", nil)

	wf.Connect("inputnode", "dwi", "extract_b0", "in_file")
	wf.Connect("extract_b0", "roi_file", "bet", "in_file")

	wf.Connect("inputnode", "dwi", "eddy", "in_file")
	wf.Connect("bet", "mask_file", "eddy", "in_mask")
	wf.Connect("inputnode", "bvecs", "eddy", "in_bvec")
	wf.Connect("inputnode", "bvals", "eddy", "in_bval")
	wf.Connect("eddy", "out_corrected", "dwi_denoise", "in_file")

	wf.Connect("dwi_denoise", "out_file", "dtifit", "dwi")
	wf.Connect("bet", "mask_file", "dtifit", "mask")
	wf.Connect("inputnode", "bvecs", "dtifit", "bvecs")
	wf.Connect("inputnode", "bvals", "dtifit", "bvals")
	wf.Connect("inputnode", "subject_id", "dtifit", "base_name")
	wf.Connect("dtifit", "L1", "get_ad", "in_file")
	wf.Connect("dtifit", "L2", "get_rd", "in_file1")
	wf.Connect("dtifit", "L3", "get_rd", "in_file2")

	wf.Connect("dwi_rename", "out_file", "sink_files", "in1")
	wf.Connect("b0_rename", "out_file", "sink_files", "in2")
	wf.Connect("mask_rename", "out_file", "sink_files", "in3")
	wf.Connect("dtifit", "FA", "sink_files", "in4")
	wf.Connect("dtifit", "MD", "sink_files", "in5")
	wf.Connect("AD_rename", "out_file", "sink_files", "in6")
	wf.Connect("RD_rename", "out_file", "sink_files", "in7")
	wf.Connect("sink_files", "out", "datasink", "in_files")
	wf.Connect("inputnode", "subject_id", "datasink", "subject_id")

	// Downstream nodes read the published copies under preprocessed/, in
	// the order sink_files merged them.
	wf.Connect("datasink", "out_files", "published", "inlist")
	for i, name := range []string{"dwi", "b0", "mask", "FA", "MD", "AD", "RD"} {
		wf.Connect("published", fmt.Sprintf("out%d", i+1), "outputnode", name)
	}
	return wf
}

// SubjectParcellation moves the source subject's annotation onto the
// subject's surfaces, projects it into the volume, dilates it into the white
// matter and renumbers the parcels.
//
// inputnode: subject_id, subjects_dir, wm. outputnode: subject_id, renum,
// renum_expanded, renum_subMask, cortical_expanded.
func SubjectParcellation(opts Options) *workflow.Workflow {
	wf := workflow.New("subject_parcellation")

	wf.AddNode("inputnode", "identity", nil)
	wf.AddNode("sxfm", "fs_surf2surf", map[string]cty.Value{
		"source_subject":    str(opts.SourceSubject),
		"source_annot_file": str(opts.ParcellationName),
	}).Iterate("hemi", str("lh"), str("rh"))
	wf.AddNode("aparc2aseg", "fs_aparc2aseg", map[string]cty.Value{
		"annotation_file": str(opts.ParcellationName),
	}).JoinOver("sxfm", "annot_files")
	wf.AddNode("expand", "expand_parcels", map[string]cty.Value{
		"parcellation_name": str(opts.ParcellationName),
		"dilatation_voxel":  cty.NumberIntVal(2),
	})
	wf.AddNode("renum", "renumber_parcels", map[string]cty.Value{
		"parcellation_name": str(opts.ParcellationName),
	})
	wf.AddNode("outputnode", "identity", nil)

	wf.Connect("inputnode", "subject_id", "sxfm", "target_subject")
	wf.Connect("sxfm", "out_file", "aparc2aseg", "annot_files")
	wf.Connect("inputnode", "subject_id", "aparc2aseg", "subject_id")
	wf.Connect("aparc2aseg", "volume_parcellation", "expand", "parcellation_file")
	wf.Connect("aparc2aseg", "subject_id", "expand", "subject_id")
	wf.Connect("inputnode", "wm", "expand", "white_matter_image")
	wf.Connect("expand", "subject_id", "renum", "subject_id")

	wf.Connect("expand", "subject_id", "outputnode", "subject_id")
	wf.Connect("expand", "cortical_expanded", "outputnode", "cortical_expanded")
	wf.Connect("renum", "renum", "outputnode", "renum")
	wf.Connect("renum", "renum_expanded", "outputnode", "renum_expanded")
	wf.Connect("renum", "renum_subMask", "outputnode", "renum_subMask")
	return wf
}

// Connectome assembles the per-subject graph.
func Connectome(opts Options) (*workflow.Workflow, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	base, err := filepath.Abs(opts.BaseDirectory)
	if err != nil {
		return nil, err
	}

	wf := workflow.New(layout.WorkflowName)
	wf.AddNode("infosource", "identity", nil).Iterate("subject_id", strs(opts.Subjects)...)
	wf.AddNode("selectfiles", "selectfiles", map[string]cty.Value{"base_directory": str(base)})
	wf.AddWorkflow(T1Preproc(opts))
	wf.AddWorkflow(DWIPreproc(opts))
	wf.AddWorkflow(SubjectParcellation(opts))

	wf.AddNode("erode_mask", "fsl_erode", nil)
	wf.AddNode("tractography", "dipy_tractography", nil).Iterate("model", strs(opts.Models)...)
	wf.AddNode("smooth", "dtk_spline_filter", map[string]cty.Value{
		"step_length": cty.NumberFloatVal(opts.SplineStepLength),
	})
	wf.AddNode("bbreg", "fs_bbregister", map[string]cty.Value{
		"init":          str("fsl"),
		"contrast_type": str("t2"),
	})
	wf.AddNode("applyreg", "fs_vol2vol", map[string]cty.Value{
		"interp":  str("nearest"),
		"inverse": cty.True,
	})
	wf.AddNode("merge", "merge", nil)
	wf.AddNode("calc_matrix", "calc_matrix", nil).
		MapOver("scalar_file").
		Iterate("threshold", nums(opts.Thresholds)...)
	for _, measure := range []string{"FA", "RD", "AD", "MD"} {
		node := measure + "_values"
		wf.AddNode(node, "fsl_stats_atlas", nil)
		wf.Connect("dwi_preproc.outputnode", measure, node, "morpho_filename")
		wf.Connect("applyreg", "transformed_file", node, "atlas_filename")
	}
	for _, hemi := range []string{"lh", "rh"} {
		node := hemi + "_aparcstats"
		wf.AddNode(node, "fs_anatomical_stats", map[string]cty.Value{
			"hemi":              str(hemi),
			"parcellation_name": str(opts.ParcellationName),
		})
		wf.Connect("t1_preproc.outputnode", "subject_id", node, "subject_id")
		wf.Connect("t1_preproc.outputnode", "subjects_dir", node, "subjects_dir")
	}
	wf.AddNode("freesurfer_values", "freesurfer_values", map[string]cty.Value{
		"parcellation_name": str(opts.ParcellationName),
	})

	// Inputs
	wf.Connect("infosource", "subject_id", "selectfiles", "subject_id")

	// DWI preprocessing
	wf.Connect("infosource", "subject_id", "dwi_preproc.inputnode", "subject_id")
	wf.Connect("selectfiles", "dwi", "dwi_preproc.inputnode", "dwi")
	wf.Connect("selectfiles", "bval", "dwi_preproc.inputnode", "bvals")
	wf.Connect("selectfiles", "bvec", "dwi_preproc.inputnode", "bvecs")

	// Tractography
	wf.Connect("dwi_preproc.outputnode", "mask", "erode_mask", "in_file")
	wf.Connect("selectfiles", "bvec", "tractography", "bvec")
	wf.Connect("selectfiles", "bval", "tractography", "bval")
	wf.Connect("dwi_preproc.outputnode", "dwi", "tractography", "in_file")
	wf.Connect("dwi_preproc.outputnode", "FA", "tractography", "FA")
	wf.Connect("erode_mask", "out_file", "tractography", "brain_mask")
	wf.Connect("tractography", "out_track", "smooth", "track_file")

	// T1 preprocessing and parcellation
	wf.Connect("infosource", "subject_id", "t1_preproc.inputnode", "subject_id")
	wf.Connect("selectfiles", "T1", "t1_preproc.inputnode", "T1")
	wf.Connect("t1_preproc.outputnode", "wm", "subject_parcellation.inputnode", "wm")
	wf.Connect("t1_preproc.outputnode", "subjects_dir", "subject_parcellation.inputnode", "subjects_dir")
	wf.Connect("t1_preproc.outputnode", "subject_id", "subject_parcellation.inputnode", "subject_id")

	// Parcellation into diffusion space
	wf.Connect("t1_preproc.outputnode", "subject_id", "bbreg", "subject_id")
	wf.Connect("t1_preproc.outputnode", "subjects_dir", "bbreg", "subjects_dir")
	wf.Connect("dwi_preproc.outputnode", "b0", "bbreg", "source_file")
	wf.Connect("dwi_preproc.outputnode", "b0", "applyreg", "source_file")
	wf.Connect("bbreg", "out_reg_file", "applyreg", "reg_file")
	wf.Connect("subject_parcellation.outputnode", "renum_expanded", "applyreg", "target_file")

	// Connectivity matrices
	wf.Connect("tractography", "out_track", "calc_matrix", "track_file")
	wf.Connect("dwi_preproc.outputnode", "FA", "merge", "in1")
	wf.Connect("dwi_preproc.outputnode", "RD", "merge", "in2")
	wf.Connect("tractography", "GFA", "merge", "in3")
	wf.Connect("merge", "out", "calc_matrix", "scalar_file")
	wf.Connect("applyreg", "transformed_file", "calc_matrix", "ROI_file")

	// FreeSurfer morphology
	wf.Connect("lh_aparcstats", "stats_file", "freesurfer_values", "lh_filename")
	wf.Connect("rh_aparcstats", "stats_file", "freesurfer_values", "rh_filename")
	wf.Connect("t1_preproc.outputnode", "subject_id", "freesurfer_values", "subject_id")

	return wf, nil
}
