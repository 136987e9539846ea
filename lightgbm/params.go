package lightgbm

import (
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

// numIterationsKeys are num_iterations and every alias LightGBM accepts for
// it. The iteration budget is always passed explicitly, so these keys are
// dropped from a Params mapping when encoding.
var numIterationsKeys = map[string]bool{
	"num_iterations":  true,
	"num_iteration":   true,
	"n_iter":          true,
	"num_tree":        true,
	"num_trees":       true,
	"num_round":       true,
	"num_rounds":      true,
	"nrounds":         true,
	"num_boost_round": true,
	"n_estimators":    true,
	"max_iter":        true,
}

// Params is an insertion-ordered set of hyperparameters. Values are
// integers, floats, booleans or single-token strings.
type Params struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{m: orderedmap.New[string, string]()}
}

// ParamsFromMap builds a Params from m. Map iteration order is random, so
// keys are inserted in sorted order.
func ParamsFromMap(m map[string]any) (*Params, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p := NewParams()
	for _, k := range keys {
		if err := p.Set(k, m[k]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Set validates and stores value under key, replacing any previous value
// but keeping the key's original position.
func (p *Params) Set(key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s, err := stringify(key, value)
	if err != nil {
		return err
	}
	p.m.Set(key, s)
	return nil
}

// The typed setters return p for chaining and panic where Set would return
// an error.
func (p *Params) SetInt(key string, v int) *Params       { return p.must(key, v) }
func (p *Params) SetFloat(key string, v float64) *Params { return p.must(key, v) }
func (p *Params) SetBool(key string, v bool) *Params     { return p.must(key, v) }
func (p *Params) SetString(key, v string) *Params        { return p.must(key, v) }

func (p *Params) must(key string, v any) *Params {
	if err := p.Set(key, v); err != nil {
		panic(err)
	}
	return p
}

// Get returns the encoded value of key.
func (p *Params) Get(key string) (string, bool) {
	return p.m.Get(key)
}

// Delete removes key and reports whether it was present.
func (p *Params) Delete(key string) bool {
	_, ok := p.m.Delete(key)
	return ok
}

func (p *Params) Len() int { return p.m.Len() }

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	keys := make([]string, 0, p.m.Len())
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	c := NewParams()
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		c.m.Set(pair.Key, pair.Value)
	}
	return c
}

func validateKey(key string) error {
	if key == "" {
		return errors.NewValidationError("key", "parameter key must not be empty", key)
	}
	if strings.ContainsRune(key, '=') || strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return errors.NewValidationError(key, "parameter key must not contain whitespace or '='", key)
	}
	return nil
}

func stringify(key string, value any) (string, error) {
	switch v := value.(type) {
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return "", errors.NewValidationError(key, "float value must be finite", v)
		}
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", errors.NewValidationError(key, "float value must be finite", v)
		}
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		if v == "" || strings.IndexFunc(v, unicode.IsSpace) >= 0 {
			return "", errors.NewValidationError(key, "string value must be a single non-empty token", v)
		}
		return v, nil
	default:
		return "", errors.NewValidationError(key, "unsupported value kind, use an integer, float, bool or string", value)
	}
}

// EncodeParams renders "num_iterations=N k1=v1 ... kK=vK". Any num_iterations
// key (or alias) in p is dropped in favour of numIterations.
func EncodeParams(numIterations int, p *Params) string {
	return encodeParams(numIterations, p, log.GetLoggerWithName("lightgbm.params"))
}

// encodeParams warns on logger for every dropped iteration key.
func encodeParams(numIterations int, p *Params, logger log.Logger) string {
	var sb strings.Builder
	sb.WriteString("num_iterations=")
	sb.WriteString(strconv.Itoa(numIterations))
	if p == nil {
		return sb.String()
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		if numIterationsKeys[pair.Key] {
			logger.Warn("Dropping iteration key from parameters, the explicit budget is used",
				"key", pair.Key,
				"value", pair.Value,
				log.IterationsKey, numIterations,
			)
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(pair.Key)
		sb.WriteByte('=')
		sb.WriteString(pair.Value)
	}
	return sb.String()
}

// ParseParamsYAML reads a flat YAML mapping of scalars, keeping document
// order. !!int, !!float, !!bool and !!str scalars map to the value kinds
// accepted by Set.
func ParseParamsYAML(r io.Reader) (*Params, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return NewParams(), nil
		}
		return nil, errors.Wrap(err, "parse parameters")
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.NewValidationError("params", "YAML parameters must be a mapping", root.Tag)
	}

	p := NewParams()
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, errors.NewValidationError(k.Value, "YAML parameter values must be scalars", v.Tag)
		}
		var value any
		var err error
		switch v.ShortTag() {
		case "!!int":
			var n int64
			err = v.Decode(&n)
			value = n
		case "!!float":
			var f float64
			err = v.Decode(&f)
			value = f
		case "!!bool":
			var b bool
			err = v.Decode(&b)
			value = b
		case "!!str":
			value = v.Value
		default:
			return nil, errors.NewValidationError(k.Value, "unsupported YAML tag", v.ShortTag())
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %s", k.Value)
		}
		if err := p.Set(k.Value, value); err != nil {
			return nil, err
		}
	}
	return p, nil
}
