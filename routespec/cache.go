package routespec

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opd-ai/privmesh/typekey"
)

// RemotePrivateRouteCacheSize bounds how many imported private routes we
// keep before the oldest untouched one is evicted.
const RemotePrivateRouteCacheSize = 1024

// CompiledRouteCacheSize bounds how many (safety route, private route) onion
// compilations we keep ready to reuse without re-deriving per-hop framing.
const CompiledRouteCacheSize = 256

type compiledRouteKey struct {
	safety  RouteId
	private RouteId
}

// Store tracks every route we've allocated or imported, which node hops are
// currently load-bearing across them, and which routes have gone dead and
// are awaiting cleanup by the caller.
type Store struct {
	mu sync.Mutex

	safetyRoutes  map[RouteId]SafetyRoute
	privateRoutes map[RouteId]PrivateRoute

	usedNodes    map[typekey.NodeId]int
	usedEndNodes map[typekey.NodeId]int
	hopCache     map[typekey.NodeId]struct{}

	remoteByKey map[typekey.NodeId]RouteId

	remoteCache   *lru.Cache[RouteId, PrivateRoute]
	compiledCache *lru.Cache[compiledRouteKey, SafetyRoute]

	deadRoutes       []RouteId
	deadRemoteRoutes []RouteId
}

// NewStore builds an empty route store.
func NewStore() *Store {
	s := &Store{
		safetyRoutes:  make(map[RouteId]SafetyRoute),
		privateRoutes: make(map[RouteId]PrivateRoute),
		usedNodes:     make(map[typekey.NodeId]int),
		usedEndNodes:  make(map[typekey.NodeId]int),
		hopCache:      make(map[typekey.NodeId]struct{}),
		remoteByKey:   make(map[typekey.NodeId]RouteId),
	}

	s.remoteCache, _ = lru.NewWithEvict(RemotePrivateRouteCacheSize, func(id RouteId, route PrivateRoute) {
		s.evictRemote(id, route)
	})
	s.compiledCache, _ = lru.New[compiledRouteKey, SafetyRoute](CompiledRouteCacheSize)

	return s
}

// evictRemote runs under s.mu (called synchronously from the LRU's Add
// path) and tears down the secondary index plus records the drop.
func (s *Store) evictRemote(id RouteId, route PrivateRoute) {
	delete(s.privateRoutes, id)
	if len(route.Hops) > 0 {
		delete(s.remoteByKey, route.PublicKey)
	}
	s.deadRemoteRoutes = append(s.deadRemoteRoutes, id)
	s.invalidateCompiledFor(id)
}

// invalidateCompiledFor drops every compiledCache entry whose safety or
// private route id matches the one just released or evicted; must be
// called under s.mu. A compiled pairing is only valid as long as both
// routes it names are still live.
func (s *Store) invalidateCompiledFor(id RouteId) {
	for _, key := range s.compiledCache.Keys() {
		if key.safety == id || key.private == id {
			s.compiledCache.Remove(key)
		}
	}
}

// AllocateSafetyRoute records a freshly built local route and bumps the
// refcount of every hop it uses, including the terminal hop's end-node
// count. It refuses to double-allocate a hop set (the same hops in the same
// order) already held by a live safety route, since reusing hop secrets
// across independent routes would let an observer correlate them.
func (s *Store) AllocateSafetyRoute(route SafetyRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.safetyRoutes[route.Id]; exists {
		return fmt.Errorf("routespec: route %s already allocated", route.Id)
	}
	for _, existing := range s.safetyRoutes {
		same := len(existing.Hops) == len(route.Hops)
		for i := 0; same && i < len(route.Hops); i++ {
			same = existing.Hops[i].NodeId == route.Hops[i].NodeId
		}
		if same {
			return fmt.Errorf("routespec: hop set already allocated to route %s", existing.Id)
		}
	}

	s.safetyRoutes[route.Id] = route
	for i, hop := range route.Hops {
		s.usedNodes[hop.NodeId]++
		s.hopCache[hop.NodeId] = struct{}{}
		if i == len(route.Hops)-1 {
			s.usedEndNodes[hop.NodeId]++
		}
	}
	return nil
}

// ReleaseSafetyRoute undoes AllocateSafetyRoute's bookkeeping and marks the
// route dead for the next TakeDeadRoutes call.
func (s *Store) ReleaseSafetyRoute(id RouteId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	route, ok := s.safetyRoutes[id]
	if !ok {
		return false
	}
	delete(s.safetyRoutes, id)

	for i, hop := range route.Hops {
		if n := s.usedNodes[hop.NodeId]; n <= 1 {
			delete(s.usedNodes, hop.NodeId)
		} else {
			s.usedNodes[hop.NodeId] = n - 1
		}
		delete(s.hopCache, hop.NodeId)
		if i == len(route.Hops)-1 {
			if n := s.usedEndNodes[hop.NodeId]; n <= 1 {
				delete(s.usedEndNodes, hop.NodeId)
			} else {
				s.usedEndNodes[hop.NodeId] = n - 1
			}
		}
	}

	s.deadRoutes = append(s.deadRoutes, id)
	s.invalidateCompiledFor(id)
	return true
}

// UsedNodeCount reports how many live routes currently hold a hop at id.
func (s *Store) UsedNodeCount(id typekey.NodeId) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedNodes[id]
}

// ImportPrivateRoute adds or refreshes a remote route description. A route
// already present is touched (moved to the front of the LRU) rather than
// duplicated.
func (s *Store) ImportPrivateRoute(route PrivateRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.privateRoutes[route.Id] = route
	s.remoteCache.Add(route.Id, route)
	s.remoteByKey[route.PublicKey] = route.Id
}

// LookupPrivateRouteByKey resolves a previously imported route from its
// public routing key, touching it in the LRU so it survives future evictions
// as long as it keeps being addressed.
func (s *Store) LookupPrivateRouteByKey(key typekey.NodeId) (PrivateRoute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.remoteByKey[key]
	if !ok {
		return PrivateRoute{}, false
	}
	return s.remoteCache.Get(id)
}

// CompileRoute caches a safety route built specifically to carry traffic to
// a given private route's terminal node, so repeated sends over the same
// pairing skip re-deriving onion framing.
func (s *Store) CompileRoute(safety RouteId, private RouteId, route SafetyRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compiledCache.Add(compiledRouteKey{safety: safety, private: private}, route)
}

// CompiledRoute returns a previously compiled pairing, if still cached.
func (s *Store) CompiledRoute(safety RouteId, private RouteId) (SafetyRoute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compiledCache.Get(compiledRouteKey{safety: safety, private: private})
}

// TakeDeadRoutes drains and returns the ids of safety routes released since
// the last call.
func (s *Store) TakeDeadRoutes() []RouteId {
	s.mu.Lock()
	defer s.mu.Unlock()
	dead := s.deadRoutes
	s.deadRoutes = nil
	return dead
}

// TakeDeadRemoteRoutes drains and returns the ids of imported routes evicted
// from the remote cache since the last call.
func (s *Store) TakeDeadRemoteRoutes() []RouteId {
	s.mu.Lock()
	defer s.mu.Unlock()
	dead := s.deadRemoteRoutes
	s.deadRemoteRoutes = nil
	return dead
}

// SealLayer wraps plaintext for a single onion hop.
func SealLayer(hop Hop, nonce uint64, associatedData, plaintext []byte) []byte {
	return sealHop(hop.Key, nonce, associatedData, plaintext)
}

// OpenLayer reverses SealLayer.
func OpenLayer(hop Hop, nonce uint64, associatedData, ciphertext []byte) ([]byte, error) {
	return openHop(hop.Key, nonce, associatedData, ciphertext)
}
