package capi

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
)

// formatFloat writes the shortest representation that parses back to v.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = formatFloat(x)
	}
	return strings.Join(parts, " ")
}

func joinInts[T ~int | ~int8](v []T) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(int(x))
	}
	return strings.Join(parts, " ")
}

// paramLines renders the parameters section in key order.
func paramLines(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("[%s: %s]", k, params[k])
	}
	return lines
}

func (t *tree) text() string {
	var sb strings.Builder
	w := func(key, value string) {
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(value)
		sb.WriteByte('\n')
	}
	w("num_leaves", strconv.Itoa(t.numLeaves))
	w("num_cat", "0")
	w("split_feature", joinInts(t.splitFeature))
	w("split_gain", joinFloats(t.splitGain))
	w("threshold", joinFloats(t.threshold))
	w("decision_type", joinInts(t.decisionType))
	w("left_child", joinInts(t.leftChild))
	w("right_child", joinInts(t.rightChild))
	w("leaf_value", joinFloats(t.leafValue))
	w("leaf_weight", joinFloats(t.leafWeight))
	w("leaf_count", joinInts(t.leafCount))
	w("internal_value", joinFloats(t.internalValue))
	w("internal_weight", joinFloats(t.internalWeigh))
	w("internal_count", joinInts(t.internalCount))
	w("is_linear", "0")
	w("shrinkage", formatFloat(t.shrinkage))
	return sb.String()
}

// modelText renders the booster in LightGBM's text model format.
func (b *goBooster) modelText(start, num int, importance FeatureImportanceType) string {
	trees := b.treeRange(start, num)
	blocks := make([]string, len(trees))
	sizes := make([]string, len(trees))
	for i, t := range trees {
		blocks[i] = fmt.Sprintf("Tree=%d\n%s\n", i, t.text())
		sizes[i] = strconv.Itoa(len(blocks[i]))
	}

	var sb strings.Builder
	sb.WriteString("tree\n")
	sb.WriteString("version=v4\n")
	sb.WriteString("num_class=1\n")
	sb.WriteString("num_tree_per_iteration=1\n")
	sb.WriteString("label_index=0\n")
	fmt.Fprintf(&sb, "max_feature_idx=%d\n", b.numFeatures-1)
	fmt.Fprintf(&sb, "objective=%s\n", b.obj.String())
	fmt.Fprintf(&sb, "feature_names=%s\n", strings.Join(b.featureNames, " "))
	fmt.Fprintf(&sb, "feature_infos=%s\n", strings.Join(b.featureInfos, " "))
	fmt.Fprintf(&sb, "tree_sizes=%s\n", strings.Join(sizes, " "))
	sb.WriteString("\n")
	for _, block := range blocks {
		sb.WriteString(block)
	}
	sb.WriteString("end of trees\n")

	sb.WriteString("\nfeature_importances:\n")
	sub := &goBooster{numFeatures: b.numFeatures, trees: trees}
	imp := sub.featureImportance(0, importance)
	order := make([]int, 0, len(imp))
	for f, v := range imp {
		if v > 0 {
			order = append(order, f)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return imp[order[i]] > imp[order[j]] })
	for _, f := range order {
		fmt.Fprintf(&sb, "%s=%s\n", b.featureNames[f], formatFloat(imp[f]))
	}

	sb.WriteString("\nparameters:\n")
	for _, line := range b.params {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString("end of parameters\n")
	sb.WriteString("\npandas_categorical:null\n")
	return sb.String()
}

// treeParams holds the key=value lines of one section of a model text.
type treeParams map[string]string

func (p treeParams) toInt(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, errors.Newf("key %s not found", key)
	}
	return strconv.Atoi(v)
}

func (p treeParams) toFloat64Slice(key string, n int) ([]float64, error) {
	v, ok := p[key]
	if !ok {
		if n == 0 {
			return nil, nil
		}
		return nil, errors.Newf("key %s not found", key)
	}
	parts := strings.Fields(v)
	if len(parts) != n {
		return nil, errors.Newf("%s has %d values, expected %d", key, len(parts), n)
	}
	out := make([]float64, n)
	for i, s := range parts {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", key)
		}
		out[i] = f
	}
	return out, nil
}

func (p treeParams) toIntSlice(key string, n int) ([]int, error) {
	v, ok := p[key]
	if !ok {
		if n == 0 {
			return nil, nil
		}
		return nil, errors.Newf("key %s not found", key)
	}
	parts := strings.Fields(v)
	if len(parts) != n {
		return nil, errors.Newf("%s has %d values, expected %d", key, len(parts), n)
	}
	out := make([]int, n)
	for i, s := range parts {
		x, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", key)
		}
		out[i] = x
	}
	return out, nil
}

// optionalFloats returns n zeros when key is missing.
func optionalFloats(p treeParams, key string, n int) ([]float64, error) {
	if _, ok := p[key]; !ok {
		return make([]float64, n), nil
	}
	return p.toFloat64Slice(key, n)
}

func optionalInts(p treeParams, key string, n int) ([]int, error) {
	if _, ok := p[key]; !ok {
		return make([]int, n), nil
	}
	return p.toIntSlice(key, n)
}

// parseModelText reads a model written by modelText or by LightGBM itself.
// Only single-output numerical trees are accepted.
func parseModelText(model string) (*goBooster, error) {
	sc := bufio.NewScanner(strings.NewReader(model))
	sc.Buffer(make([]byte, 0, 64*1024), len(model)+1)

	header := treeParams{}
	var treeSections []treeParams
	var params []string
	section := "header"
	var cur treeParams

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "Tree="):
			cur = treeParams{}
			treeSections = append(treeSections, cur)
			section = "tree"
			continue
		case line == "end of trees":
			section = "trailer"
			continue
		case line == "parameters:":
			section = "parameters"
			continue
		case line == "end of parameters":
			section = "trailer"
			continue
		case line == "":
			continue
		}

		switch section {
		case "header":
			if k, v, ok := strings.Cut(line, "="); ok {
				header[k] = v
			}
		case "tree":
			if k, v, ok := strings.Cut(line, "="); ok {
				cur[k] = v
			}
		case "parameters":
			params = append(params, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read model")
	}

	if _, ok := header["version"]; !ok {
		return nil, errors.New("model format error, expect a version line")
	}
	if nc, ok := header["num_class"]; ok && nc != "1" {
		return nil, errors.Newf("num_class=%s is not supported", nc)
	}
	if nt, ok := header["num_tree_per_iteration"]; ok && nt != "1" {
		return nil, errors.Newf("num_tree_per_iteration=%s is not supported", nt)
	}
	maxFeature, err := header.toInt("max_feature_idx")
	if err != nil {
		return nil, errors.Wrap(err, "model format error")
	}
	obj, err := parseObjective(header["objective"])
	if err != nil {
		return nil, err
	}

	b := &goBooster{
		cfg:          defaultConfig(),
		obj:          obj,
		numFeatures:  maxFeature + 1,
		featureNames: strings.Fields(header["feature_names"]),
		featureInfos: strings.Fields(header["feature_infos"]),
		params:       params,
	}
	if len(b.featureNames) != b.numFeatures {
		return nil, errors.Newf("model has %d feature names for %d features", len(b.featureNames), b.numFeatures)
	}
	if len(b.featureInfos) != b.numFeatures {
		b.featureInfos = make([]string, b.numFeatures)
		for j := range b.featureInfos {
			b.featureInfos[j] = "none"
		}
	}

	if sizes, ok := header["tree_sizes"]; ok && len(strings.Fields(sizes)) != len(treeSections) {
		return nil, errors.Newf("tree_sizes lists %d trees, model has %d", len(strings.Fields(sizes)), len(treeSections))
	}
	for i, p := range treeSections {
		t, err := parseTree(p, b.numFeatures)
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		b.trees = append(b.trees, t)
	}
	return b, nil
}

func parseTree(p treeParams, numFeatures int) (*tree, error) {
	numLeaves, err := p.toInt("num_leaves")
	if err != nil {
		return nil, err
	}
	if numLeaves < 1 {
		return nil, errors.Newf("num_leaves=%d", numLeaves)
	}
	if cat, ok := p["num_cat"]; ok && cat != "0" {
		return nil, errors.New("categorical splits are not supported")
	}
	nodes := numLeaves - 1

	t := &tree{numLeaves: numLeaves, shrinkage: 1}
	if s, ok := p["shrinkage"]; ok {
		if t.shrinkage, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, errors.Wrap(err, "parse shrinkage")
		}
	}
	if t.leafValue, err = p.toFloat64Slice("leaf_value", numLeaves); err != nil {
		return nil, err
	}
	if t.leafWeight, err = optionalFloats(p, "leaf_weight", numLeaves); err != nil {
		return nil, err
	}
	if t.leafCount, err = optionalInts(p, "leaf_count", numLeaves); err != nil {
		return nil, err
	}
	if t.splitFeature, err = p.toIntSlice("split_feature", nodes); err != nil {
		return nil, err
	}
	if t.splitGain, err = optionalFloats(p, "split_gain", nodes); err != nil {
		return nil, err
	}
	if t.threshold, err = p.toFloat64Slice("threshold", nodes); err != nil {
		return nil, err
	}
	if t.leftChild, err = p.toIntSlice("left_child", nodes); err != nil {
		return nil, err
	}
	if t.rightChild, err = p.toIntSlice("right_child", nodes); err != nil {
		return nil, err
	}
	if t.internalValue, err = optionalFloats(p, "internal_value", nodes); err != nil {
		return nil, err
	}
	if t.internalWeigh, err = optionalFloats(p, "internal_weight", nodes); err != nil {
		return nil, err
	}
	if t.internalCount, err = optionalInts(p, "internal_count", nodes); err != nil {
		return nil, err
	}
	dt, err := p.toIntSlice("decision_type", nodes)
	if err != nil {
		return nil, err
	}
	t.decisionType = make([]int8, nodes)
	for i, d := range dt {
		if d&categoricalMask != 0 {
			return nil, errors.New("categorical splits are not supported")
		}
		t.decisionType[i] = int8(d)
	}

	for i := 0; i < nodes; i++ {
		if f := t.splitFeature[i]; f < 0 || f >= numFeatures {
			return nil, errors.Newf("split_feature %d out of range", f)
		}
		for _, c := range []int{t.leftChild[i], t.rightChild[i]} {
			if c >= nodes || (c < 0 && ^c >= numLeaves) || c == 0 {
				return nil, errors.Newf("child %d of node %d out of range", c, i)
			}
		}
	}
	return t, nil
}
