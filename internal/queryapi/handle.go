package queryapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ringdb/ringdb/internal/cache"
	"github.com/ringdb/ringdb/internal/config"
	"github.com/ringdb/ringdb/internal/device"
	"github.com/ringdb/ringdb/internal/eventbus"
	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/obsmetrics"
	"github.com/ringdb/ringdb/internal/peer"
	"github.com/ringdb/ringdb/internal/room"
	"github.com/ringdb/ringdb/internal/roomlock"
	"github.com/ringdb/ringdb/internal/store"
	"github.com/ringdb/ringdb/internal/verifypool"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// privateRoomContext is the fixed Blake3 derivation context for a device's
// private room id, so every replica sharing the same (app_key, key_material)
// derives the same room id without storing it separately (§6
// `private_room()`, spec.md scenario 8.2).
const privateRoomContext = "ringdb_private_room"

// Handle is the embedder-facing facade (§6): the single entry point an
// application holds to mutate/query/delete graph data, manage invites, and
// subscribe to replication events. It owns the process-wide singletons
// (store, verification pool, room lock, event bus, connection service)
// internal/peer's sessions are wired against.
type Handle struct {
	cfg *config.Config

	db          *sql.DB
	graphStore  *graph.Store
	replicaSt   *replicaStore
	signingKey  xcrypto.SigningKey
	bus         *eventbus.Bus
	lockService *roomlock.Service
	verifyPool  *verifypool.Pool
	connSvc     *peer.ConnectionService
	caches      *cache.Caches
	local       *device.Identity
	metrics     *obsmetrics.Metrics

	privateRoom xcrypto.Uid

	mu        sync.RWMutex
	dataModel *DataModel
}

// New constructs a Handle: opens (or creates) the replica database in
// dataDir, derives this device's signing key from (appKey, keyMaterial),
// parses datamodel, and starts the process-wide singletons (§5 "shared
// state"). keyMaterial must be 32 bytes.
func New(datamodel, appKey string, keyMaterial []byte, dataDir string, cfg *config.Config) (*Handle, error) {
	if len(keyMaterial) != 32 {
		return nil, fmt.Errorf("queryapi: key_material must be 32 bytes, got %d", len(keyMaterial))
	}
	dm, err := ParseDataModel(datamodel)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(dataDir)
	if err != nil {
		return nil, err
	}

	local, err := device.Load(dataDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("queryapi: load device identity: %w", err)
	}

	seed := xcrypto.DerivePassphrase(appKey, string(keyMaterial))
	signingKey, err := xcrypto.ImportSigningKey(seed[:ed25519SeedSize])
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("queryapi: derive signing key: %w", err)
	}

	maxRowLength := cfg.MaxObjectSizeInKB * 1024
	graphStore := graph.NewStore(db, maxRowLength)
	replicaSt := newReplicaStore(db, graphStore, signingKey)
	bus := eventbus.New()
	lockService := roomlock.Start(cfg.Parallelism)
	verifyPool := verifypool.New(cfg.Parallelism, cfg.WriteBufferLength)
	connSvc := peer.NewConnectionService(replicaSt, signingKey, lockService, bus, verifyPool, maxRowLength, newSlogLogger())

	caches, err := cache.New(cfg.ReadCacheSizeInKB, cfg.WriteCacheSizeInKB)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("queryapi: build caches: %w", err)
	}

	privateRoom := xcrypto.DeriveUid(privateRoomContext, keyMaterial)
	metrics := obsmetrics.New()

	h := &Handle{
		cfg:         cfg,
		db:          db,
		graphStore:  graphStore,
		replicaSt:   replicaSt,
		signingKey:  signingKey,
		bus:         bus,
		lockService: lockService,
		verifyPool:  verifyPool,
		connSvc:     connSvc,
		caches:      caches,
		local:       local,
		metrics:     metrics,
		privateRoom: privateRoom,
		dataModel:   dm,
	}

	if err := h.ensurePrivateRoom(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	go h.trackPeerGauge()
	return h, nil
}

// trackPeerGauge keeps obsmetrics' peer_connections gauge in step with
// PeerConnected/PeerDisconnected events for as long as this Handle lives.
func (h *Handle) trackPeerGauge() {
	for ev := range h.bus.Subscribe() {
		switch ev.Kind {
		case eventbus.KindPeerConnected:
			h.metrics.PeerConnections.Inc()
		case eventbus.KindPeerDisconnected:
			h.metrics.PeerConnections.Dec()
		case eventbus.KindRoomSynchronized:
			h.metrics.ObserveRoomSynced(ev.RoomID.String())
		}
	}
}

// Metrics exposes the Prometheus registry and counters an embedder can wire
// into internal/obsmetrics.NewServer for a /metrics and /healthz surface.
func (h *Handle) Metrics() *obsmetrics.Metrics { return h.metrics }

// ed25519SeedSize duplicates crypto/ed25519.SeedSize to avoid importing the
// package here just for one constant.
const ed25519SeedSize = 32

// ensurePrivateRoom creates this device's private room on first run, with
// the device itself as sole admin, mirroring every other room's shape so
// it replicates like any other room to this identity's other devices.
func (h *Handle) ensurePrivateRoom(ctx context.Context) error {
	existing, err := h.replicaSt.Room(ctx, h.privateRoom)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	r := room.NewRoom(h.privateRoom)
	key := xcrypto.Base64Encode(h.signingKey.VerifyingKey().Export())
	now := time.Now().UnixMilli()
	if err := r.AddAdmin(key, now, true); err != nil {
		return err
	}
	r.MDate = now
	return h.replicaSt.PutRoom(ctx, r)
}

// HardwareID returns this installation's persisted fingerprint, the id
// internal/peer's ConnectionInfo.HardwareID should carry for connections the
// transport recognises as coming from this same machine.
func (h *Handle) HardwareID() xcrypto.Uid { return h.local.HardwareID }

// HardwareName returns this installation's host-reported name.
func (h *Handle) HardwareName() string { return h.local.HardwareName }

// AcceptsAutomatically reports whether a connection from hardwareID should
// be let in without an explicit invite: either it is a second process
// running this exact identity's own fingerprint under auto_accept_local_device,
// or auto_allow_new_peers is set and any device is accepted (§6
// "Configuration").
func (h *Handle) AcceptsAutomatically(hardwareID xcrypto.Uid) bool {
	if h.cfg.AutoAcceptLocalDevice && hardwareID == h.local.HardwareID {
		return true
	}
	return h.cfg.AutoAllowNewPeers
}

// ConnectionService exposes the peer connection multiplexer so a transport
// adapter (out of scope per spec.md §1) can register accepted connections.
func (h *Handle) ConnectionService() *peer.ConnectionService { return h.connSvc }

// VerifyingKey returns this replica's own verifying key, base64-encoded.
func (h *Handle) VerifyingKey() string {
	return xcrypto.Base64Encode(h.signingKey.VerifyingKey().Export())
}

// PrivateRoom returns this identity's private room id, base64-encoded.
func (h *Handle) PrivateRoom() string {
	return h.privateRoom.String()
}

// DataModel returns the current datamodel as a JSON object.
func (h *Handle) DataModel() (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out, err := json.Marshal(map[string]string{"datamodel": h.dataModel.Encode()})
	return string(out), err
}

// UpdateDataModel replaces the current datamodel, adding newly declared
// entities without touching already-stored rows of entities that remain
// declared (§6 `update_data_model`).
func (h *Handle) UpdateDataModel(src string) (string, error) {
	dm, err := ParseDataModel(src)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	h.dataModel = dm
	h.mu.Unlock()
	return h.DataModel()
}

// SubscribeForEvents returns a channel of replication/data events (§6
// `subscribe_for_events`).
func (h *Handle) SubscribeForEvents() <-chan eventbus.Event {
	return h.bus.Subscribe()
}

// Close releases the process-wide singletons this Handle owns.
func (h *Handle) Close() error {
	h.verifyPool.Close()
	h.caches.Close()
	return h.db.Close()
}

func (h *Handle) entity(name string) (EntityDef, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	def, ok := h.dataModel.Entities[name]
	if !ok {
		return EntityDef{}, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return def, nil
}

func paramRoom(params map[string]any, fallback xcrypto.Uid) (xcrypto.Uid, error) {
	raw, ok := params["room"]
	if !ok {
		return fallback, nil
	}
	s, ok := raw.(string)
	if !ok {
		return xcrypto.Uid{}, fmt.Errorf("%w: room parameter must be a string", ErrParsing)
	}
	return xcrypto.ParseUid(s)
}
