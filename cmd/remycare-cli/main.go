package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/remycare-client/app"
	"github.com/jrsteele09/remycare-client/gateway"
	remyerrors "github.com/jrsteele09/remycare-client/internal/errors"
	"github.com/jrsteele09/remycare-client/internal/config"
	"github.com/jrsteele09/remycare-client/internal/logging"
	"github.com/jrsteele09/remycare-client/poll"
	"github.com/jrsteele09/remycare-client/realtime"
)

const (
	phoneVar = "REMY_PHONE"
	pinVar   = "REMY_PIN"
)

var pushedEvents = []realtime.Event{
	realtime.EventCheckinNew,
	realtime.EventAppointmentCreated,
	realtime.EventAppointmentUpdated,
	realtime.EventEscalationCreated,
	realtime.EventEscalationUpdated,
}

func main() {
	c := config.New()
	logging.Install(logging.New(c.GetLogLevel(), c.GetEnv()))

	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("Client stopped")
	}
	log.Info().Msg("Client stopped")
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	phone, pin := config.GetEnv(phoneVar, ""), config.GetEnv(pinVar, "")
	if phone == "" || pin == "" {
		return fmt.Errorf("%s and %s must be set", phoneVar, pinVar)
	}

	expired := make(chan struct{}, 1)
	client, err := app.New(c, app.WithSessionExpiredHandler(func() {
		select {
		case expired <- struct{}{}:
		default:
		}
	}))
	if err != nil {
		return err
	}

	displayAppname(c.GetAppName())
	ctx := context.Background()
	user, err := client.Login(ctx, phone, pin)
	if err != nil {
		var apiErr *gateway.APIError
		if remyerrors.As(err, &apiErr) {
			return fmt.Errorf("login refused (%s): %s", apiErr.Kind, apiErr.Message)
		}
		return fmt.Errorf("login: %w", err)
	}
	log.Info().Int64("user_id", user.ID).Str("name", user.Name).Str("role", string(user.Role)).Msg("Logged in")

	for _, event := range pushedEvents {
		client.Channel().Subscribe(event, printEvent(event))
	}
	client.Channel().WatchStatus(func(s realtime.Status) {
		log.Info().Stringer("status", s).Msg("Realtime status")
	})
	if err := client.JoinProfileRooms(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not join profile rooms")
	}
	client.Channel().Connect()

	fallback := client.PollWhenOffline(pollEscalations(client), c.GetOfflinePollInterval(), poll.NewPage(true))
	defer fallback.Stop()

	select {
	case <-waitForStopSignal():
		log.Info().Msg("Signal received, logging out")
	case <-expired:
		log.Warn().Msg("Session expired, please log in again")
	}

	logoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client.Logout(logoutCtx)
	return nil
}

func printEvent(event realtime.Event) realtime.Handler {
	return func(data json.RawMessage) {
		log.Info().Str("event", string(event)).RawJSON("data", data).Msg("Push received")
	}
}

// pollEscalations fetches the escalation list while push delivery is down.
func pollEscalations(client *app.App) poll.Callback {
	return func(ctx context.Context) error {
		var escalations []json.RawMessage
		if err := client.Gateway().Get(ctx, "/escalations", &escalations); err != nil {
			return err
		}
		log.Info().Int("count", len(escalations)).Msg("Polled escalations")
		return nil
	}
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
