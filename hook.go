package typedstore

// Transformer is a symmetric string transform applied at the driver boundary,
// e.g. compression or encryption. TransformIn must invert TransformOut.
type Transformer interface {
	// TransformOut runs on the serialized envelope before it is written.
	TransformOut(s string) (string, error)
	// TransformIn runs on the stored string before it is parsed.
	TransformIn(s string) (string, error)
}

// TransformFuncs adapts a pair of functions to Transformer.
type TransformFuncs struct {
	Out func(string) (string, error)
	In  func(string) (string, error)
}

func (f TransformFuncs) TransformOut(s string) (string, error) {
	if f.Out == nil {
		return s, nil
	}
	return f.Out(s)
}

func (f TransformFuncs) TransformIn(s string) (string, error) {
	if f.In == nil {
		return s, nil
	}
	return f.In(s)
}

type chain []Transformer

// Chain composes transformers. Writes run them in order, reads in reverse.
func Chain(ts ...Transformer) Transformer {
	out := make(chain, 0, len(ts))
	for _, t := range ts {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (c chain) TransformOut(s string) (string, error) {
	var err error
	for _, t := range c {
		if s, err = t.TransformOut(s); err != nil {
			return "", err
		}
	}
	return s, nil
}

func (c chain) TransformIn(s string) (string, error) {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		if s, err = c[i].TransformIn(s); err != nil {
			return "", err
		}
	}
	return s, nil
}
