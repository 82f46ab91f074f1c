package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Oudwins/zog/zhttp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"liyu1981.xyz/greenhouse-relay/pkg/common"
	"liyu1981.xyz/greenhouse-relay/pkg/models"
	"liyu1981.xyz/greenhouse-relay/pkg/relay"
)

type HistoryEntry struct {
	Ts      time.Time `json:"ts"`
	Temp    *float64  `json:"temp"`
	Hum     *float64  `json:"hum"`
	SoilPct *int      `json:"soil_pct"`
	LdrPct  *int      `json:"ldr_pct"`
	Pump    *int      `json:"pump"`
	Fan     *int      `json:"fan"`
}

func toHistoryEntry(r models.Reading) HistoryEntry {
	return HistoryEntry{
		Ts:      r.Ts,
		Temp:    r.Temp,
		Hum:     r.Hum,
		SoilPct: r.SoilPct,
		LdrPct:  r.LdrPct,
		Pump:    r.Pump,
		Fan:     r.Fan,
	}
}

type CommandResponse struct {
	ManualPump int `json:"manualpump"`
	ManualFans int `json:"manualfans"`
}

// bodyData treats a request without a body as an empty JSON object, whatever
// its transfer encoding. A JSON array names no fields, so it is read the same
// way; other documents go to zhttp.
func bodyData(c *gin.Context) (any, error) {
	if c.Request.Body == nil {
		return map[string]any{}, nil
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '[' {
		return map[string]any{}, nil
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	c.Request.ContentLength = int64(len(raw))
	return zhttp.Request(c.Request), nil
}

func queryData(c *gin.Context) map[string]any {
	data := map[string]any{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			data[key] = values[0]
		}
	}
	return data
}

func (rs *RestfulServer) storageFailure(c *gin.Context, err error) {
	rs.logger().Error("Request failed", zap.String("route", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (rs *RestfulServer) PostIngest(c *gin.Context) {
	data, err := bodyData(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reading, err := relay.ParseIngest(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !rs.CheckDeviceLimiter(reading.Device) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	if err := rs.Relay.Reading.Ingest(c.Request.Context(), reading); err != nil {
		rs.storageFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (rs *RestfulServer) GetHistory(c *gin.Context) {
	device, limit, err := relay.ParseHistoryQuery(queryData(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	readings, err := rs.Relay.Reading.History(c.Request.Context(), device, limit)
	if errors.Is(err, relay.ErrInvalidLimit) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		rs.storageFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, common.Mapper(readings, toHistoryEntry))
}

func (rs *RestfulServer) PostCommand(c *gin.Context) {
	data, err := bodyData(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	command, err := relay.ParseCommand(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := rs.Relay.Command.SetCommand(c.Request.Context(), command); err != nil {
		rs.storageFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (rs *RestfulServer) GetCommand(c *gin.Context) {
	device, err := relay.ParseDevice(queryData(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !rs.CheckDeviceLimiter(device) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	command, err := rs.Relay.Command.GetCommand(c.Request.Context(), device)
	if err != nil {
		rs.storageFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, CommandResponse{
		ManualPump: command.ManualPump,
		ManualFans: command.ManualFans,
	})
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	if rs.Relay != nil && rs.Relay.Db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rs.Relay.Db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
