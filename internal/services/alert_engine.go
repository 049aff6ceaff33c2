package services

import (
	"context"
	"log"
	"time"

	"resusboard/internal/models"
)

// AlertPayload is broadcast when an interval alert fires
type AlertPayload struct {
	Timer           string `json:"timer"`
	IntervalSeconds int    `json:"intervalSeconds"`
}

// AlertEngine drives the once-per-second tick and raises the compressor
// rotation and adrenaline reminders.
//
// Each alert fires at most once per arming: after firing, the engine stays
// quiet until the timer drops back below its threshold (the team pressed a
// re-arm action), then watches for the next crossing. Disabling an alert in
// settings silences it on the very next tick.
type AlertEngine struct {
	episodes *EpisodeService
	settings *SettingsService
	bus      *EventBus

	// injectable for tests
	now      func() time.Time
	interval time.Duration

	massagerShown   bool
	adrenalineShown bool

	stop chan struct{}
	done chan struct{}
}

// NewAlertEngine creates the alert engine. Call Start to begin ticking.
func NewAlertEngine(episodes *EpisodeService, settings *SettingsService, bus *EventBus) *AlertEngine {
	return &AlertEngine{
		episodes: episodes,
		settings: settings,
		bus:      bus,
		now:      time.Now,
		interval: time.Second,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop in a background goroutine
func (e *AlertEngine) Start() {
	log.Println("⏱️ [ALERTS] Tick loop started")
	go e.run()
}

// Stop halts the tick loop and waits for it to exit
func (e *AlertEngine) Stop() {
	close(e.stop)
	<-e.done
	log.Println("⏱️ [ALERTS] Tick loop stopped")
}

func (e *AlertEngine) run() {
	defer close(e.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.tickOnce(context.Background(), e.now())
		}
	}
}

// tickOnce advances the episode timers and evaluates both alerts.
// Split out from the loop so tests can drive time directly.
func (e *AlertEngine) tickOnce(ctx context.Context, now time.Time) {
	timers, running := e.episodes.Advance(ctx, now)
	if !running {
		// Idle board, next episode starts with fresh alerts
		e.massagerShown = false
		e.adrenalineShown = false
		return
	}

	settings := e.settings.Get()

	e.massagerShown = e.evaluate(models.EventMassagerAlert, "massager",
		timers.MassagerTime, settings.MassagerAlertSeconds,
		settings.MassagerAlertEnabled, e.massagerShown)

	e.adrenalineShown = e.evaluate(models.EventAdrenalineAlert, "adrenaline",
		timers.AdrenalineTime, settings.AdrenalineAlertSeconds,
		settings.AdrenalineAlertEnabled, e.adrenalineShown)
}

// evaluate fires one alert when its countdown reaches zero and returns the
// new shown state. A countdown back above zero means the channel was
// re-armed, which clears the shown flag.
func (e *AlertEngine) evaluate(eventType, timerName string, remaining, interval int, enabled, shown bool) bool {
	if remaining > 0 {
		return false
	}
	if shown || !enabled {
		return shown
	}

	log.Printf("🔔 [ALERTS] %s alert due (interval %ds)", timerName, interval)
	e.bus.Publish(models.Event{
		Type: eventType,
		Payload: AlertPayload{
			Timer:           timerName,
			IntervalSeconds: interval,
		},
	})
	return true
}
