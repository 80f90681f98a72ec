package dhtstorage

import (
	"context"
	"errors"

	"github.com/opd-ai/privmesh/typekey"
	"github.com/opd-ai/privmesh/vmerr"
)

// FanoutConfig carries the four knobs every fanout procedure shares.
type FanoutConfig struct {
	KeyCount       int
	ConsensusCount int
	Fanout         int
	TimeoutUs      int64
}

// NodeQuerier reaches one node per call; fanout procedures call it once per
// candidate node in closest-first order. Each call reports a NetworkResult
// rather than a plain error so the fanout loop can tell a non-fatal,
// per-peer drop (Timeout, NoConnection, ...) apart from a reply that
// parsed fine.
type NodeQuerier interface {
	GetValue(ctx context.Context, node typekey.NodeId, key typekey.NodeId, subkey int) vmerr.NetworkResult[GetValueReply]
	SetValue(ctx context.Context, node typekey.NodeId, key typekey.NodeId, value SignedValueData, descriptor *Schema) vmerr.NetworkResult[SetValueReply]
	InspectValue(ctx context.Context, node typekey.NodeId, key typekey.NodeId, subkeyStart, subkeyCount int) vmerr.NetworkResult[InspectValueReply]
}

// ClosestNodes returns the candidate nodes to fan out to, closest first.
type ClosestNodes interface {
	FindClosestNodes(target typekey.NodeId, count int) []typekey.NodeId
}

// GetValueReply is what a peer returns for outbound_get_value.
type GetValueReply struct {
	Descriptor *Schema
	Value      *SignedValueData
}

// SetValueReply is what a peer returns for outbound_set_value: either it
// accepted our value, or it already held a newer one.
type SetValueReply struct {
	Newer *SignedValueData
}

// InspectValueReply is what a peer returns for outbound_inspect_value: one
// sequence number per requested subkey, MaxSequenceNumber for "undefined".
type InspectValueReply struct {
	Descriptor *Schema
	Seqs       []uint32
}

var (
	// ErrInvalidMessage flags a reply whose shape can't be trusted, e.g. a
	// seqs array of the wrong length.
	ErrInvalidMessage = errors.New("dhtstorage: invalid message")
)

// candidateBound returns the total number of candidates a fanout procedure
// may contact across the whole traversal. KeyCount bounds that total;
// Fanout only bounds per-round concurrency, so it must never be used as
// the candidate-fetch size on its own, or consensus beyond Fanout nodes
// becomes unreachable. Falls back to Fanout when KeyCount is unset so
// callers that never configure it keep today's single-round behavior.
func candidateBound(cfg FanoutConfig) int {
	if cfg.KeyCount > cfg.Fanout {
		return cfg.KeyCount
	}
	return cfg.Fanout
}

// getValueContext accumulates outbound_get_value's running state across
// the nodes it visits.
type getValueContext struct {
	descriptor   *Schema
	value        *SignedValueData
	count        int
	missedSinceLastSet int
}

func (c *getValueContext) done(consensus int) bool {
	if c.count >= consensus {
		return true
	}
	half := (consensus + 1) / 2
	return c.count >= half && c.missedSinceLastSet >= consensus
}

// OutboundGetValue implements outbound_get_value: seed from any locally
// cached value, then query successive closest nodes until consensus (or
// the non-converging bailout) is reached.
func OutboundGetValue(ctx context.Context, cfg FanoutConfig, key typekey.NodeId, subkey int, cached *Record, nodes ClosestNodes, querier NodeQuerier) (*SignedValueData, *Schema, error) {
	gctx := &getValueContext{}
	if cached != nil {
		gctx.descriptor = &cached.Schema
		if v, ok := cached.Get(subkey); ok {
			gctx.value = &v
			gctx.count = 1
		}
	}

	candidates := nodes.FindClosestNodes(key, candidateBound(cfg))
	for _, node := range candidates {
		if gctx.done(cfg.ConsensusCount) {
			break
		}
		reply, ok := querier.GetValue(ctx, node, key, subkey).Value()
		if !ok {
			// network-layer failure (timeout, no connection, ...): drop
			// this peer and keep fanning out to the rest of candidates.
			continue
		}
		if reply.Descriptor != nil && gctx.descriptor == nil {
			gctx.descriptor = reply.Descriptor
		}
		switch {
		case reply.Value == nil:
			gctx.missedSinceLastSet++
		case gctx.value == nil || reply.Value.Seq > gctx.value.Seq:
			gctx.value = reply.Value
			gctx.count = 1
			gctx.missedSinceLastSet = 0
		case reply.Value.Seq == gctx.value.Seq:
			gctx.count++
		default:
			gctx.missedSinceLastSet++
		}
	}

	return gctx.value, gctx.descriptor, nil
}

// setValueContext mirrors getValueContext but re-sends the (possibly
// updated) value on every hop instead of merely recording matches.
type setValueContext struct {
	value *SignedValueData
	count int
	missedSinceLastSet int
}

func (c *setValueContext) done(consensus int) bool {
	if c.count >= consensus {
		return true
	}
	half := (consensus + 1) / 2
	return c.count >= half && c.missedSinceLastSet >= consensus
}

// OutboundSetValue implements outbound_set_value: same shape as
// OutboundGetValue, but we actively push value forward, adopting and
// restarting the count whenever a hop reports something newer, and
// silently dropping replies that claim an older or equal sequence number
// without actually accepting our write (those nodes are excluded from the
// consensus count).
func OutboundSetValue(ctx context.Context, cfg FanoutConfig, key typekey.NodeId, value SignedValueData, descriptor *Schema, nodes ClosestNodes, querier NodeQuerier) (SignedValueData, error) {
	sctx := &setValueContext{value: &value}

	candidates := nodes.FindClosestNodes(key, candidateBound(cfg))
	for _, node := range candidates {
		if sctx.done(cfg.ConsensusCount) {
			break
		}
		reply, ok := querier.SetValue(ctx, node, key, *sctx.value, descriptor).Value()
		if !ok {
			continue
		}
		switch {
		case reply.Newer != nil && reply.Newer.Seq > sctx.value.Seq:
			sctx.value = reply.Newer
			sctx.count = 1
			sctx.missedSinceLastSet = 0
		case reply.Newer != nil:
			// Misbehaving peer claimed a newer value that wasn't; drop it
			// from consensus without adopting or restarting.
			continue
		default:
			sctx.count++
		}
	}

	return *sctx.value, nil
}

// inspectValueContext tracks, per requested subkey position, the best seq
// seen and which nodes confirmed it.
type inspectValueContext struct {
	bestSeq    []uint32
	confirmers [][]typekey.NodeId
	descriptor *Schema
}

func newInspectValueContext(subkeyCount int) *inspectValueContext {
	c := &inspectValueContext{
		bestSeq:    make([]uint32, subkeyCount),
		confirmers: make([][]typekey.NodeId, subkeyCount),
	}
	for i := range c.bestSeq {
		c.bestSeq[i] = MaxSequenceNumber
	}
	return c
}

func (c *inspectValueContext) done(consensus int) bool {
	if c.descriptor == nil {
		return false
	}
	for _, confirmed := range c.confirmers {
		if len(confirmed) < consensus {
			return false
		}
	}
	return true
}

// OutboundInspectValue implements outbound_inspect_value: per-subkey
// sequence-number discovery across the closest nodes, stopping once every
// requested subkey has reached consensus_count confirmations and a
// descriptor is known.
func OutboundInspectValue(ctx context.Context, cfg FanoutConfig, key typekey.NodeId, subkeyStart, subkeyCount int, nodes ClosestNodes, querier NodeQuerier) ([]uint32, *Schema, error) {
	ictx := newInspectValueContext(subkeyCount)

	candidates := nodes.FindClosestNodes(key, candidateBound(cfg))
	for _, node := range candidates {
		if ictx.done(cfg.ConsensusCount) {
			break
		}
		reply, ok := querier.InspectValue(ctx, node, key, subkeyStart, subkeyCount).Value()
		if !ok {
			continue
		}
		if len(reply.Seqs) != subkeyCount {
			return nil, nil, ErrInvalidMessage
		}
		if reply.Descriptor != nil && ictx.descriptor == nil {
			ictx.descriptor = reply.Descriptor
		}
		for i, seq := range reply.Seqs {
			if seq == MaxSequenceNumber {
				continue
			}
			switch {
			case ictx.bestSeq[i] == MaxSequenceNumber || seq > ictx.bestSeq[i]:
				ictx.bestSeq[i] = seq
				ictx.confirmers[i] = []typekey.NodeId{node}
			case seq == ictx.bestSeq[i]:
				ictx.confirmers[i] = append(ictx.confirmers[i], node)
			}
		}
	}

	return ictx.bestSeq, ictx.descriptor, nil
}

// InboundSetValue implements inbound_set_value: a stored record only moves
// forward in sequence number, and a supplied descriptor must match the
// stored one exactly (excluding signatures, which descriptors don't carry).
func InboundSetValue(stored *Record, value SignedValueData, descriptor *Schema) (SignedValueData, error) {
	if current, ok := stored.Get(value.Subkey); ok && value.Seq <= current.Seq {
		return current, nil
	}
	if descriptor != nil {
		if stored.Schema.SubkeyCount != 0 && !stored.Schema.Equivalent(*descriptor) {
			return SignedValueData{}, ErrSchemaMismatch
		}
		if stored.Schema.SubkeyCount == 0 {
			stored.Schema = *descriptor
		}
	}
	if err := stored.Put(value); err != nil {
		return SignedValueData{}, err
	}
	return value, nil
}
