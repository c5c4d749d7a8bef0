package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"weekcast/internal/weather"
)

const maxLocationBodyBytes = 1 << 10

type Handler struct {
	manager  *weather.DailyManager
	validate *validator.Validate
	changes  *changeCounter
}

// changeCounter turns manager notifications into a version number clients
// can poll.
type changeCounter struct {
	version atomic.Uint64
}

func (c *changeCounter) DailyWeatherChanged() {
	c.version.Add(1)
}

func NewHandler(manager *weather.DailyManager) *Handler {
	h := &Handler{
		manager:  manager,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		changes:  &changeCounter{},
	}
	weather.Subscribe(manager.Listeners(), h.changes)
	return h
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/weather/daily", h.getDaily)
	mux.HandleFunc("GET /v1/weather/hourly-context", h.getHourlyContext)
	mux.HandleFunc("PUT /v1/location", h.putLocation)
	mux.HandleFunc("POST /v1/refresh", h.postRefresh)
	mux.HandleFunc("GET /health", h.health)
}

type locationJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type dailyJSON struct {
	Location  locationJSON  `json:"location"`
	Timezone  string        `json:"timezone"`
	LastFetch time.Time     `json:"last_fetch"`
	Version   uint64        `json:"version"`
	Days      []daySlotJSON `json:"days"`
}

type daySlotJSON struct {
	Timestamp int64         `json:"timestamp"`
	Date      string        `json:"date"`
	Forecast  *forecastJSON `json:"forecast"`
}

type forecastJSON struct {
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	WindSpeed *float64 `json:"wind_speed_avg"`
	PrecipMM  *float64 `json:"precipitation_mm"`
	Symbol    *string  `json:"symbol"`
}

type hourlyContextJSON struct {
	Location  locationJSON `json:"location"`
	Timezone  string       `json:"timezone"`
	Timestamp int64        `json:"timestamp"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

func (h *Handler) getDaily(w http.ResponseWriter, r *http.Request) {
	view := h.manager.View()
	tz := view.Context.Timezone
	resp := dailyJSON{
		Location:  toLocationJSON(view.Context.Location),
		Timezone:  tz.String(),
		LastFetch: view.LastFetch,
		Version:   h.changes.version.Load(),
	}

	for _, ts := range view.Timestamps {
		slot := daySlotJSON{
			Timestamp: ts,
			Date:      time.Unix(ts, 0).In(tz).Format(time.DateOnly),
		}
		if d, ok := view.DayWeather(ts); ok {
			slot.Forecast = &forecastJSON{
				High:      d.TempHigh,
				Low:       d.TempLow,
				WindSpeed: d.WindSpeed,
				PrecipMM:  d.PrecipMM,
				Symbol:    d.Symbol,
			}
		}
		resp.Days = append(resp.Days, slot)
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getHourlyContext(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseInt(r.URL.Query().Get("timestamp"), 10, 64)
	if err != nil {
		writeJSONError(w, "invalid timestamp parameter", http.StatusBadRequest)
		return
	}

	hc := h.manager.HourlyContext(ts)
	writeJSON(w, http.StatusOK, hourlyContextJSON{
		Location:  toLocationJSON(hc.Location),
		Timezone:  hc.Timezone.String(),
		Timestamp: hc.Timestamp,
	})
}

func (h *Handler) putLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxLocationBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSONError(w, "invalid location: "+err.Error(), http.StatusBadRequest)
		return
	}

	loc := weather.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	slog.Info("location changed", "lat", loc.Latitude, "lon", loc.Longitude)
	h.manager.SetLocation(loc)
	writeJSON(w, http.StatusAccepted, toLocationJSON(loc))
}

func (h *Handler) postRefresh(w http.ResponseWriter, r *http.Request) {
	h.manager.RefetchDataIfNeeded()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func toLocationJSON(c weather.Coordinates) locationJSON {
	return locationJSON{Latitude: c.Latitude, Longitude: c.Longitude}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
