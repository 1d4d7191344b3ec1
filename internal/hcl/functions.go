package hcl

import (
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"
	ctyfunction "github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

type function = ctyfunction.Function

// compoundExtensions are matched before filepath.Ext so that `stem` and
// `ext` treat `brain.nii.gz` as `brain` + `.nii.gz`.
var compoundExtensions = []string{".nii.gz", ".tar.gz", ".mgz", ".nii", ".trk"}

// SplitExt splits a file name into its stem and extension, honoring
// neuroimaging double extensions.
func SplitExt(name string) (string, string) {
	base := filepath.Base(name)
	lower := strings.ToLower(base)
	for _, e := range compoundExtensions {
		if strings.HasSuffix(lower, e) && len(base) > len(e) {
			return base[:len(base)-len(e)], base[len(base)-len(e):]
		}
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

func stringFunc(fn func(string) string) function {
	return ctyfunction.New(&ctyfunction.Spec{
		Params: []ctyfunction.Parameter{{Name: "path", Type: cty.String}},
		Type:   ctyfunction.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.StringVal(fn(args[0].AsString())), nil
		},
	})
}

// flagFunc renders `flag(cond, "-m")` as ["-m"] when cond is true and as an
// empty list otherwise.
var flagFunc = ctyfunction.New(&ctyfunction.Spec{
	Params: []ctyfunction.Parameter{
		{Name: "enabled", Type: cty.Bool, AllowNull: true},
		{Name: "flag", Type: cty.String},
	},
	Type: ctyfunction.StaticReturnType(cty.List(cty.String)),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if args[0].IsNull() || args[0].False() {
			return cty.ListValEmpty(cty.String), nil
		}
		return cty.ListVal([]cty.Value{args[1]}), nil
	},
})

// optFunc renders `opt("-t", value)` as ["-t", "value"], or an empty list
// when value is null or the empty string.
var optFunc = ctyfunction.New(&ctyfunction.Spec{
	Params: []ctyfunction.Parameter{
		{Name: "flag", Type: cty.String},
		{Name: "value", Type: cty.DynamicPseudoType, AllowNull: true},
	},
	Type: ctyfunction.StaticReturnType(cty.List(cty.String)),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		val := args[1]
		if val.IsNull() {
			return cty.ListValEmpty(cty.String), nil
		}
		str, err := stdlib.FormatFunc.Call([]cty.Value{cty.StringVal("%v"), val})
		if err != nil {
			return cty.NilVal, err
		}
		if str.AsString() == "" {
			return cty.ListValEmpty(cty.String), nil
		}
		return cty.ListVal([]cty.Value{args[0], str}), nil
	},
})

// Functions returns the function library available to manifest expressions.
func Functions() map[string]function {
	return map[string]function{
		"basename": stringFunc(filepath.Base),
		"dirname":  stringFunc(filepath.Dir),
		"stem": stringFunc(func(p string) string {
			stem, _ := SplitExt(p)
			return stem
		}),
		"ext": stringFunc(func(p string) string {
			_, ext := SplitExt(p)
			return ext
		}),
		"flag":     flagFunc,
		"opt":      optFunc,
		"format":   stdlib.FormatFunc,
		"join":     stdlib.JoinFunc,
		"split":    stdlib.SplitFunc,
		"concat":   stdlib.ConcatFunc,
		"flatten":  stdlib.FlattenFunc,
		"coalesce": stdlib.CoalesceFunc,
		"upper":    stdlib.UpperFunc,
		"lower":    stdlib.LowerFunc,
		"length":   stdlib.LengthFunc,
		"tostring": stdlib.MakeToFunc(cty.String),
	}
}
