package http

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"propcast/apperr"
	"propcast/inference"
)

const decodeOp = "decode predict request"

// decodePredictRequest parses a /predict body. Float fields accept JSON
// numbers or numeric strings; blades must be integral.
func decodePredictRequest(body io.Reader) (inference.Request, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return inference.Request{}, apperr.Invalid(decodeOp, "", "request body too large")
		}
		if errors.Is(err, io.EOF) {
			return inference.Request{}, apperr.Invalid(decodeOp, "", "request body is empty")
		}
		return inference.Request{}, apperr.Invalid(decodeOp, "", "request body must be a JSON object")
	}
	if fields == nil {
		return inference.Request{}, apperr.Invalid(decodeOp, "", "request body must be a JSON object")
	}

	var (
		req inference.Request
		err error
	)
	if req.Diameter, err = floatField(fields, "diameter"); err != nil {
		return inference.Request{}, err
	}
	if req.Pitch, err = floatField(fields, "pitch"); err != nil {
		return inference.Request{}, err
	}
	if req.Blades, err = intField(fields, "blades"); err != nil {
		return inference.Request{}, err
	}
	if req.AdvanceRatio, err = floatField(fields, "advance_ratio"); err != nil {
		return inference.Request{}, err
	}
	return req, nil
}

func floatField(fields map[string]interface{}, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return 0, apperr.Invalid(decodeOp, name, "is required")
	}

	var text string
	switch v := raw.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return 0, apperr.Invalid(decodeOp, name, "must be a number")
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, apperr.Invalid(decodeOp, name, "must be a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperr.Invalid(decodeOp, name, "must be finite")
	}
	return f, nil
}

func intField(fields map[string]interface{}, name string) (int, error) {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return 0, apperr.Invalid(decodeOp, name, "is required")
	}

	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return toInt(name, n)
		}
		f, err := v.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, apperr.Invalid(decodeOp, name, "must be an integer")
		}
		return int(f), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, apperr.Invalid(decodeOp, name, "must be an integer")
		}
		return toInt(name, n)
	default:
		return 0, apperr.Invalid(decodeOp, name, "must be an integer")
	}
}

func toInt(name string, n int64) (int, error) {
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, apperr.Invalid(decodeOp, name, "is out of range")
	}
	return int(n), nil
}
