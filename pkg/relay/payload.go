package relay

import (
	"fmt"
	"math"
	"sort"
	"strings"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/conf"
	"github.com/Oudwins/zog/zconst"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
)

// Payload schemas accept either an HTTP request (zhttp.Request) or a plain
// map, as decoded from a gRPC struct. Nothing is required and no range is
// checked: numbers, numeric strings and nulls all pass, only values that can
// not become the column type are rejected.

// coerceColumnInt accepts what an integer column accepts: whole numbers and
// integer strings. Fractions and booleans are rejected instead of truncated.
func coerceColumnInt(data any) (any, error) {
	switch v := data.(type) {
	case bool:
		return nil, fmt.Errorf("boolean %v is not an integer", v)
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%g is not an integer", v)
		}
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return nil, fmt.Errorf("%g is not an integer", v)
		}
	}
	return conf.DefaultCoercers.Int(data)
}

func columnInt() *z.PointerSchema {
	return z.Ptr(z.Int(z.WithCoercer(coerceColumnInt)))
}

type IngestPayload struct {
	Device  string   `zog:"device"`
	Temp    *float64 `zog:"temp"`
	Hum     *float64 `zog:"hum"`
	SoilPct *int     `zog:"soil_pct"`
	LdrPct  *int     `zog:"ldr_pct"`
	Pump    *int     `zog:"pump"`
	Fan     *int     `zog:"fan"`
}

var ingestPayloadSchema = z.Struct(z.Shape{
	"Device":  z.String(),
	"Temp":    z.Ptr(z.Float64()),
	"Hum":     z.Ptr(z.Float64()),
	"SoilPct": columnInt(),
	"LdrPct":  columnInt(),
	"Pump":    columnInt(),
	"Fan":     columnInt(),
})

type CommandPayload struct {
	Device     *string `zog:"device"`
	ManualPump *int    `zog:"manualPump"`
	ManualFans *int    `zog:"manualFans"`
}

var commandPayloadSchema = z.Struct(z.Shape{
	"Device":     z.Ptr(z.String()),
	"ManualPump": columnInt(),
	"ManualFans": columnInt(),
})

type HistoryQuery struct {
	Device *string `zog:"device"`
	Limit  *int    `zog:"limit"`
}

var historyQuerySchema = z.Struct(z.Shape{
	"Device": z.Ptr(z.String()),
	"Limit":  columnInt(),
})

type DeviceQuery struct {
	Device *string `zog:"device"`
}

var deviceQuerySchema = z.Struct(z.Shape{
	"Device": z.Ptr(z.String()),
})

// PayloadError lists the fields whose values could not be coerced.
type PayloadError struct {
	Issues []string
}

func (e *PayloadError) Error() string {
	return "invalid payload: " + strings.Join(e.Issues, "; ")
}

func issueText(issue *z.ZogIssue) string {
	if issue.Message != "" {
		return issue.Message
	}
	text := fmt.Sprintf("%v", issue.Code)
	if issue.Err != nil {
		text += ": " + issue.Err.Error()
	}
	return text
}

func newPayloadError(issues z.ZogIssueMap) error {
	var msgs []string
	for field, list := range issues {
		if field == zconst.ISSUE_KEY_FIRST {
			continue
		}
		if field == zconst.ISSUE_KEY_ROOT {
			field = "body"
		}
		for _, issue := range list {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, issueText(issue)))
		}
	}
	sort.Strings(msgs)
	return &PayloadError{Issues: msgs}
}

func ParseIngest(data any) (*models.Reading, error) {
	var p IngestPayload
	if issues := ingestPayloadSchema.Parse(data, &p); issues != nil {
		return nil, newPayloadError(issues)
	}
	return &models.Reading{
		Device:  common.OrDefault(p.Device, models.DefaultDevice),
		Temp:    p.Temp,
		Hum:     p.Hum,
		SoilPct: p.SoilPct,
		LdrPct:  p.LdrPct,
		Pump:    p.Pump,
		Fan:     p.Fan,
	}, nil
}

// ParseCommand resolves an omitted or null override to automatic. Only an
// omitted device becomes the default one; an empty string is kept as sent.
func ParseCommand(data any) (*models.Command, error) {
	var p CommandPayload
	if issues := commandPayloadSchema.Parse(data, &p); issues != nil {
		return nil, newPayloadError(issues)
	}
	return &models.Command{
		Device:     common.Deref(p.Device, models.DefaultDevice),
		ManualPump: common.Deref(p.ManualPump, models.OverrideAuto),
		ManualFans: common.Deref(p.ManualFans, models.OverrideAuto),
	}, nil
}

func ParseHistoryQuery(data any) (device string, limit int, err error) {
	var q HistoryQuery
	if issues := historyQuerySchema.Parse(data, &q); issues != nil {
		return "", 0, newPayloadError(issues)
	}
	return common.Deref(q.Device, models.DefaultDevice), common.Deref(q.Limit, DefaultHistoryLimit), nil
}

func ParseDevice(data any) (string, error) {
	var q DeviceQuery
	if issues := deviceQuerySchema.Parse(data, &q); issues != nil {
		return "", newPayloadError(issues)
	}
	return common.Deref(q.Device, models.DefaultDevice), nil
}
