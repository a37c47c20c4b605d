package netprocessing

import (
	"fmt"
	"strings"
	"time"

	"github.com/bsv-blockchain/peerlogic/settings"
	"github.com/bsv-blockchain/peerlogic/ulogger"
)

// maxReasonHistory bounds the reasons kept per peer for diagnostics.
const maxReasonHistory = 32

// BanReason is an enum for the kinds of misbehavior a peer can be scored for.
type BanReason int

const (
	ReasonUnknown BanReason = iota
	ReasonMalformed
	ReasonProtocolViolation
	ReasonInvalidBlock
	ReasonInvalidTx
	ReasonStall
	ReasonMissingVersion
	ReasonMissingVerack
	ReasonDuplicateVersion
	ReasonOversized
	ReasonNonContinuousHeaders
	ReasonUnconnectingHeaders
	ReasonSpam
)

func (r BanReason) String() string {
	switch r {
	case ReasonMalformed:
		return "malformed"
	case ReasonProtocolViolation:
		return "protocol_violation"
	case ReasonInvalidBlock:
		return "invalid_block"
	case ReasonInvalidTx:
		return "invalid_tx"
	case ReasonStall:
		return "stall"
	case ReasonMissingVersion:
		return "missing_version"
	case ReasonMissingVerack:
		return "missing_verack"
	case ReasonDuplicateVersion:
		return "duplicate_version"
	case ReasonOversized:
		return "oversized"
	case ReasonNonContinuousHeaders:
		return "non_continuous_headers"
	case ReasonUnconnectingHeaders:
		return "unconnecting_headers"
	case ReasonSpam:
		return "spam"
	default:
		return "unknown"
	}
}

// MisbehaviorTracker turns protocol violations into a per peer score and decides when a peer is to be
// banned.
//
// Every violation is worth a fixed number of points, looked up by BanReason. The stall penalty comes from
// settings, the rest are policy constants. A peer's score only grows for the lifetime of its connection
// and is dropped together with its PeerState, so there is no decay and no sliding window.
//
// The tracker keeps no per peer state of its own: the score, the reason history and the pending ban flag
// live on the PeerState and the caller holds the peer lock for every call. Crossing the ban threshold only
// flags the peer; the sender hands it to the transport at the end of its next cycle, never in the middle
// of handling a message.
type MisbehaviorTracker struct {
	logger       ulogger.Logger
	banThreshold int
	banDuration  time.Duration
	reasonPoints map[BanReason]int
	now          func() time.Time
}

func NewMisbehaviorTracker(logger ulogger.Logger, tSettings *settings.Settings) *MisbehaviorTracker {
	initPrometheusMetrics()

	return &MisbehaviorTracker{
		logger:       logger,
		banThreshold: tSettings.NetProcessing.BanScore,
		banDuration:  tSettings.NetProcessing.BanTime,
		reasonPoints: map[BanReason]int{
			ReasonMalformed:            20,
			ReasonProtocolViolation:    20,
			ReasonInvalidBlock:         100,
			ReasonInvalidTx:            10,
			ReasonStall:                tSettings.NetProcessing.StallPenalty,
			ReasonMissingVersion:       1,
			ReasonMissingVerack:        1,
			ReasonDuplicateVersion:     1,
			ReasonOversized:            20,
			ReasonNonContinuousHeaders: 20,
			ReasonUnconnectingHeaders:  20,
			ReasonSpam:                 50,
		},
		now: time.Now,
	}
}

// Points returns the score a reason is worth.
func (m *MisbehaviorTracker) Points(reason BanReason) int {
	return m.reasonPoints[reason]
}

// Threshold returns the score at which a peer is banned.
func (m *MisbehaviorTracker) Threshold() int {
	return m.banThreshold
}

// BanUntil returns the expiry of a ban starting now.
func (m *MisbehaviorTracker) BanUntil() time.Time {
	return m.now().Add(m.banDuration)
}

// AddReason scores the peer with the points configured for reason.
func (m *MisbehaviorTracker) AddReason(ps *PeerState, reason BanReason, detail string) bool {
	return m.Misbehave(ps, m.reasonPoints[reason], reason.String()+": "+detail)
}

// Misbehave adds amount to the peer's score and records reason. It sets pendingBan on the call that takes
// the score from below the threshold to the threshold or above, and returns true while a ban is pending
// so the caller stops processing the peer's messages. Negative amounts are ignored. Caller holds the peer
// lock.
func (m *MisbehaviorTracker) Misbehave(ps *PeerState, amount int, reason string) bool {
	if amount < 0 {
		amount = 0
	}

	before := ps.misbehaviorScore
	after := before + amount
	ps.misbehaviorScore = after

	if amount > 0 {
		ps.reasons = append(ps.reasons, fmt.Sprintf("%s +%d", reason, amount))
		if len(ps.reasons) > maxReasonHistory {
			ps.reasons = ps.reasons[len(ps.reasons)-maxReasonHistory:]
		}

		prometheusNetProcessingMisbehavior.WithLabelValues(reasonLabel(reason)).Add(float64(amount))
	}

	warnThreshold := m.banThreshold >> 1

	switch {
	case amount == 0:
		if after > warnThreshold {
			m.logger.Warnf("[MisbehaviorTracker] misbehaving peer %d: %s -- score is %d, it was not increased this time", ps.id, reason, after)
		}
	case after > warnThreshold:
		m.logger.Warnf("[MisbehaviorTracker] misbehaving peer %d: %s -- score increased to %d", ps.id, reason, after)
	default:
		m.logger.Debugf("[MisbehaviorTracker] misbehaving peer %d: %s -- score increased to %d", ps.id, reason, after)
	}

	if before < m.banThreshold && after >= m.banThreshold {
		ps.pendingBan = true
		ps.requestDisconnect("misbehaving: " + reason)

		m.logger.Infof("[MisbehaviorTracker] peer %d reached ban score %d, banning", ps.id, after)
	}

	return ps.pendingBan
}

// reasonLabel strips the free form detail so the metric label stays bounded.
func reasonLabel(reason string) string {
	label, _, _ := strings.Cut(reason, ":")

	return label
}
