// Package listener consumes the upstream master's event stream and
// dispatches each event into storage: raw event log, job/job-return
// records, and the materialised per-family minion state (grains, pillars,
// packages, conformity, last-seen).
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/resalt-bridge/resalt/internal/logger"
	"github.com/resalt-bridge/resalt/internal/model"
	"github.com/resalt-bridge/resalt/internal/store"
	"github.com/resalt-bridge/resalt/internal/upstream"
	"github.com/resalt-bridge/resalt/internal/upstream/sse"
)

// SystemServiceUsername is the identity the listener logs in as to obtain
// its own event-stream session, distinct from any human or API user.
const SystemServiceUsername = "$superadmin/svc/resalt$"

const eventTimestampLayout = "2006-01-02T15:04:05.999999"

// Listener owns the long-running connection to the upstream event stream.
type Listener struct {
	client            *upstream.Client
	store             store.Store
	systemServiceToken string
	connected         atomic.Bool
}

// New builds a Listener. systemServiceToken is the shared secret used as the
// "password" when logging in as SystemServiceUsername.
func New(client *upstream.Client, s store.Store, systemServiceToken string) *Listener {
	return &Listener{client: client, store: s, systemServiceToken: systemServiceToken}
}

// Connected reports whether the listener currently holds a live connection.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Start runs the reconnect loop until ctx is cancelled: login, stream
// events, and on disconnect sleep one second before trying again.
func (l *Listener) Start(ctx context.Context) {
	log := logger.Listener()
	for {
		if ctx.Err() != nil {
			return
		}
		l.listen(ctx)
		l.connected.Store(false)
		log.Warn().Msg("event stream ended, reconnecting")

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) listen(ctx context.Context) {
	log := logger.Listener()

	token, err := l.client.Login(ctx, SystemServiceUsername, l.systemServiceToken)
	if err != nil {
		log.Error().Err(err).Msg("failed to refresh listener token")
		return
	}

	events, err := l.client.ListenEvents(ctx, token.Token)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to event stream")
		return
	}

	l.connected.Store(true)

	for event := range events {
		l.handleEvent(ctx, event)
	}
}

func (l *Listener) handleEvent(ctx context.Context, event sse.Event) {
	log := logger.Listener()

	var envelope struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(event.Data), &envelope); err != nil || envelope.Data == nil {
		log.Error().Err(err).Msg("failed to parse event data")
		return
	}
	data := envelope.Data

	stampRaw, ok := data["_stamp"]
	if !ok {
		log.Error().Msg("event missing _stamp")
		return
	}
	var stampStr string
	if err := json.Unmarshal(stampRaw, &stampStr); err != nil {
		log.Error().Err(err).Msg("failed to read _stamp")
		return
	}
	stamp, err := time.Parse(eventTimestampLayout, stampStr)
	if err != nil {
		log.Error().Err(err).Msg("failed to parse _stamp")
		return
	}

	eventRecord := &model.Event{
		ID:        "evnt_" + uuid.NewString(),
		Timestamp: stamp,
		Tag:       event.Tag,
		Data:      event.Data,
	}
	if err := l.store.CreateEvent(ctx, eventRecord); err != nil {
		log.Error().Err(err).Msg("failed to insert event")
		return
	}

	tagParts := strings.Split(event.Tag, "/")
	switch {
	case len(tagParts) == 4 && tagParts[0] == "salt" && tagParts[1] == "job" && tagParts[3] == "new":
		l.handleJobNew(ctx, tagParts[2], data, eventRecord.ID, stamp)
	case len(tagParts) == 5 && tagParts[0] == "salt" && tagParts[1] == "job" && tagParts[3] == "ret":
		l.handleJobReturn(ctx, tagParts[2], tagParts[4], data, eventRecord.ID, stamp)
	case event.Tag == "salt/auth":
		l.handleAuth(ctx, data, stamp)
	}
}

func (l *Listener) handleJobNew(ctx context.Context, jid string, data map[string]json.RawMessage, eventID string, stamp time.Time) {
	log := logger.Listener()
	var user *string
	if raw, ok := data["user"]; ok {
		var u string
		if err := json.Unmarshal(raw, &u); err == nil {
			user = &u
		}
	}
	job := &model.Job{
		ID:        "job_" + uuid.NewString(),
		Timestamp: stamp,
		Jid:       jid,
		User:      user,
		EventID:   &eventID,
	}
	if err := l.store.CreateJob(ctx, job); err != nil {
		log.Error().Err(err).Str("jid", jid).Msg("failed to insert job")
	}
}

func (l *Listener) handleJobReturn(ctx context.Context, jid, minionID string, data map[string]json.RawMessage, eventID string, stamp time.Time) {
	log := logger.Listener()

	var fun string
	if raw, ok := data["fun"]; ok {
		_ = json.Unmarshal(raw, &fun)
	}

	job, err := l.store.GetJobByJid(ctx, jid)
	if err != nil {
		log.Error().Err(err).Str("jid", jid).Msg("failed to look up job for return")
	} else if job == nil {
		log.Warn().Str("jid", jid).Msg("job return for unknown jid")
	} else {
		jobReturn := &model.JobReturn{
			ID:        "jret_" + uuid.NewString(),
			Timestamp: stamp,
			Jid:       jid,
			JobID:     job.ID,
			EventID:   eventID,
			MinionID:  minionID,
		}
		if err := l.store.CreateJobReturn(ctx, jobReturn); err != nil {
			log.Error().Err(err).Msg("failed to insert job return")
		}
	}

	switch fun {
	case "grains.items":
		l.handleGrains(ctx, data, stamp)
	case "pillar.items":
		l.handlePillar(ctx, data, stamp)
	case "pkg.list_pkgs":
		l.handlePkgs(ctx, data, stamp)
	case "state.apply", "state.highstate":
		l.handleConformity(ctx, data, stamp)
	}
}

func minionIDFromData(data map[string]json.RawMessage) (string, bool) {
	raw, ok := data["id"]
	if !ok {
		return "", false
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", false
	}
	return id, true
}

func (l *Listener) handleGrains(ctx context.Context, data map[string]json.RawMessage, stamp time.Time) {
	log := logger.Listener()
	minionID, ok := minionIDFromData(data)
	if !ok {
		log.Error().Msg("grains event missing minion id")
		return
	}
	raw, ok := data["return"]
	if !ok {
		log.Error().Msg("grains event missing return")
		return
	}
	var grains map[string]json.RawMessage
	if err := json.Unmarshal(raw, &grains); err != nil {
		log.Error().Err(err).Msg("grains return is not an object")
		return
	}

	osFullname := grainString(grains, "osfullname", "Unknown")
	osRelease := grainString(grains, "osrelease", "")
	osType := strings.TrimSpace(fmt.Sprintf("%s %s", osFullname, osRelease))

	if err := l.store.UpdateMinionGrains(ctx, minionID, string(raw), stamp); err != nil {
		log.Error().Err(err).Msg("failed updating minion grains")
		return
	}
	if err := l.store.UpsertMinionSeen(ctx, minionID, stamp, &osType); err != nil {
		log.Error().Err(err).Msg("failed updating minion os_type")
	}
}

func grainString(grains map[string]json.RawMessage, key, fallback string) string {
	raw, ok := grains[key]
	if !ok {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fallback
	}
	return s
}

func (l *Listener) handlePillar(ctx context.Context, data map[string]json.RawMessage, stamp time.Time) {
	log := logger.Listener()
	minionID, ok := minionIDFromData(data)
	if !ok {
		log.Error().Msg("pillar event missing minion id")
		return
	}
	raw, ok := data["return"]
	if !ok {
		log.Error().Msg("pillar event missing return")
		return
	}
	if err := l.store.UpdateMinionPillars(ctx, minionID, string(raw), stamp); err != nil {
		log.Error().Err(err).Msg("failed updating minion pillar")
	}
}

func (l *Listener) handlePkgs(ctx context.Context, data map[string]json.RawMessage, stamp time.Time) {
	log := logger.Listener()
	minionID, ok := minionIDFromData(data)
	if !ok {
		log.Error().Msg("pkg event missing minion id")
		return
	}
	raw, ok := data["return"]
	if !ok {
		log.Error().Msg("pkg event missing return")
		return
	}
	if err := l.store.UpdateMinionPkgs(ctx, minionID, string(raw), stamp); err != nil {
		log.Error().Err(err).Msg("failed updating minion pkgs")
	}
}

// isHighstateCall reports whether fun_args indicates a real highstate run
// (no args, or the sole arg is test=True in any of Salt's accepted
// string/object encodings) rather than a partial, targeted state.apply.
func isHighstateCall(funArgs []json.RawMessage) bool {
	if len(funArgs) == 0 {
		return true
	}
	var asString string
	if err := json.Unmarshal(funArgs[0], &asString); err == nil {
		return strings.EqualFold(asString, "test=true")
	}
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(funArgs[0], &asObject); err == nil {
		testRaw, ok := asObject["test"]
		if !ok {
			return false
		}
		var testStr string
		if err := json.Unmarshal(testRaw, &testStr); err == nil {
			return strings.EqualFold(testStr, "true")
		}
		var testBool bool
		if err := json.Unmarshal(testRaw, &testBool); err == nil {
			return testBool
		}
	}
	return false
}

func (l *Listener) handleConformity(ctx context.Context, data map[string]json.RawMessage, stamp time.Time) {
	log := logger.Listener()

	var funArgs []json.RawMessage
	if raw, ok := data["fun_args"]; ok {
		if err := json.Unmarshal(raw, &funArgs); err != nil {
			log.Error().Err(err).Msg("failed to read fun_args")
			return
		}
	}
	if !isHighstateCall(funArgs) {
		return
	}

	var retcode int64
	if raw, ok := data["retcode"]; ok {
		if err := json.Unmarshal(raw, &retcode); err != nil {
			log.Error().Msg("failed to get retcode from event data")
			return
		}
	} else {
		log.Error().Msg("conformity event missing retcode")
		return
	}
	if retcode == 1 {
		return
	}

	minionID, ok := minionIDFromData(data)
	if !ok {
		log.Error().Msg("conformity event missing minion id")
		return
	}

	raw, ok := data["return"]
	if !ok {
		log.Error().Msg("conformity event missing return")
		return
	}
	var ret map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &ret); err != nil {
		log.Error().Err(err).Msg("conformity return is not an object")
		return
	}

	var success, incorrect, errorCount int32
	for _, item := range ret {
		resultRaw, ok := item["result"]
		if !ok {
			log.Error().Msg("failed to get result from conformity item")
			continue
		}
		// test=True mode reports null for states that would change. A JSON
		// null unmarshals into a bool without error, so it has to be checked
		// before the bool decode.
		if string(resultRaw) == "null" {
			incorrect++
			continue
		}
		var resultBool bool
		if err := json.Unmarshal(resultRaw, &resultBool); err != nil {
			incorrect++
			continue
		}
		if resultBool {
			success++
		} else {
			errorCount++
		}
	}

	if err := l.store.UpdateMinionConformity(ctx, minionID, string(raw), success, incorrect, errorCount, stamp); err != nil {
		log.Error().Err(err).Msg("failed updating minion conformity")
	}
}

func (l *Listener) handleAuth(ctx context.Context, data map[string]json.RawMessage, stamp time.Time) {
	log := logger.Listener()

	var result bool
	if raw, ok := data["result"]; ok {
		_ = json.Unmarshal(raw, &result)
	}
	if !result {
		return
	}

	minionID, ok := minionIDFromData(data)
	if !ok {
		log.Error().Msg("auth event missing minion id")
		return
	}
	if err := l.store.UpsertMinionSeen(ctx, minionID, stamp, nil); err != nil {
		log.Error().Err(err).Msg("failed updating minion last seen")
	}
}
