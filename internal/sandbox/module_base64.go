package sandbox

import (
	"encoding/base64"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

func newBase64Module() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "base64",
		Members: starlark.StringDict{
			"b64encode":         base64Encoder("base64.b64encode", base64.StdEncoding),
			"b64decode":         base64Decoder("base64.b64decode", base64.StdEncoding),
			"urlsafe_b64encode": base64Encoder("base64.urlsafe_b64encode", base64.URLEncoding),
			"urlsafe_b64decode": base64Decoder("base64.urlsafe_b64decode", base64.URLEncoding),
		},
	}
}

func base64Encoder(name string, enc *base64.Encoding) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		return starlark.String(enc.EncodeToString([]byte(s))), nil
	})
}

func base64Decoder(name string, enc *base64.Encoding) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		data, err := enc.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return starlark.String(data), nil
	})
}
