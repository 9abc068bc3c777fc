package gatewaytest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/cabsync/cabsync/internal/gateway"
	"github.com/cabsync/cabsync/internal/lifecycle"
)

// Gateway is an in-memory stand-in for the ride gateway, implementing the
// REST surface and the websocket push endpoint against a map of rides and
// notifications. It backs the unit tests and cmd/gatewaysim; it is not a
// production server.
type Gateway struct {
	router *mux.Router

	mu            stdsync.Mutex
	rides         map[string]gateway.Ride
	notifications []gateway.Notification

	wsMu     stdsync.Mutex
	upgrader websocket.Upgrader
	conns    map[*websocket.Conn]struct{}

	now func() time.Time
}

// New builds an empty gateway.
func New() *Gateway {
	g := &Gateway{
		rides: make(map[string]gateway.Ride),
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now: time.Now,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/rides/", g.createRide).Methods(http.MethodPost)
	r.HandleFunc("/api/rides/", g.listRides).Methods(http.MethodGet)
	r.HandleFunc("/api/rides/{id}/", g.getRide).Methods(http.MethodGet)
	r.HandleFunc("/api/rides/{id}/accept/", g.acceptRide).Methods(http.MethodPost)
	r.HandleFunc("/api/rides/{id}/reject/", g.rejectRide).Methods(http.MethodPost)
	r.HandleFunc("/api/rides/{id}/complete/", g.completeRide).Methods(http.MethodPost)
	r.HandleFunc("/api/rides/{id}/cancel/", g.cancelRide).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/", g.listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/unread/", g.listUnread).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/poll/", g.pollNotifications).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/mark_all_as_read/", g.markAllRead).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/{id}/mark_as_read/", g.markRead).Methods(http.MethodPost)
	r.HandleFunc("/ws", g.serveWS)
	g.router = r
	return g
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// caller identifies the authenticated session. The simulator's tokens are
// "role:user", e.g. "requester:alice", where a production gateway would
// verify a real bearer credential.
type caller struct {
	role lifecycle.Role
	user string
}

func (g *Gateway) authenticate(r *http.Request) (caller, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return caller{}, false
	}
	roleName, user, ok := strings.Cut(token, ":")
	if !ok || user == "" {
		return caller{}, false
	}
	role, err := lifecycle.ParseRole(roleName)
	if err != nil {
		return caller{}, false
	}
	return caller{role: role, user: user}, true
}

func (g *Gateway) createRide(w http.ResponseWriter, r *http.Request) {
	who, ok := g.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	if who.role != lifecycle.RoleRequester {
		writeDetail(w, http.StatusForbidden, "Only passengers can request a ride")
		return
	}
	var body struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(body.Origin) == "" || strings.TrimSpace(body.Destination) == "" {
		writeDetail(w, http.StatusBadRequest, "origin and destination are required")
		return
	}

	g.mu.Lock()
	now := g.now().UTC().Format(time.RFC3339Nano)
	ride := gateway.Ride{
		ID:          uuid.NewString(),
		Requester:   who.user,
		Origin:      body.Origin,
		Destination: body.Destination,
		Status:      lifecycle.StatusRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.rides[ride.ID] = ride
	notification := g.notifyLocked(who.user, ride, gateway.NotifyRideRequested,
		"Ride Request Received",
		"Your ride from "+ride.Origin+" to "+ride.Destination+" has been requested.")
	g.mu.Unlock()

	g.broadcast(gateway.NotifyRideRequested, ride, notification)
	writeJSON(w, http.StatusCreated, ride)
}

func (g *Gateway) listRides(w http.ResponseWriter, r *http.Request) {
	who, ok := g.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	g.mu.Lock()
	var rides []gateway.Ride
	for _, ride := range g.rides {
		if g.visibleLocked(ride, who) {
			rides = append(rides, ride)
		}
	}
	g.mu.Unlock()
	sort.Slice(rides, func(i, j int) bool {
		if rides[i].CreatedAt != rides[j].CreatedAt {
			return rides[i].CreatedAt > rides[j].CreatedAt
		}
		return rides[i].ID < rides[j].ID
	})
	if rides == nil {
		rides = []gateway.Ride{}
	}
	writeJSON(w, http.StatusOK, rides)
}

// visibleLocked mirrors the gateway's role scoping: requesters see their own
// rides, fulfillers see rides assigned to them plus the open pool.
func (g *Gateway) visibleLocked(ride gateway.Ride, who caller) bool {
	switch who.role {
	case lifecycle.RoleRequester:
		return ride.Requester == who.user
	case lifecycle.RoleFulfiller:
		if ride.Fulfiller == who.user {
			return true
		}
		return ride.Status == lifecycle.StatusRequested || ride.Status == lifecycle.StatusOffered
	}
	return false
}

func (g *Gateway) getRide(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.authenticate(r); !ok {
		writeDetail(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	g.mu.Lock()
	ride, ok := g.rides[mux.Vars(r)["id"]]
	g.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Ride not found")
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (g *Gateway) acceptRide(w http.ResponseWriter, r *http.Request) {
	g.rideAction(w, r, lifecycle.RoleFulfiller, func(ride *gateway.Ride, who caller) (string, string, string, bool) {
		if ride.Status != lifecycle.StatusRequested && ride.Status != lifecycle.StatusOffered {
			return "", "", "Ride not available", false
		}
		ride.Fulfiller = who.user
		ride.Status = lifecycle.StatusAccepted
		return gateway.NotifyRideAccepted, ride.Requester, "", true
	})
}

func (g *Gateway) rejectRide(w http.ResponseWriter, r *http.Request) {
	g.rideAction(w, r, lifecycle.RoleFulfiller, func(ride *gateway.Ride, who caller) (string, string, string, bool) {
		if ride.Status != lifecycle.StatusOffered {
			return "", "", "Ride not offered", false
		}
		ride.Fulfiller = ""
		ride.Status = lifecycle.StatusRequested
		return gateway.NotifyRideRejected, ride.Requester, "", true
	})
}

func (g *Gateway) completeRide(w http.ResponseWriter, r *http.Request) {
	g.rideAction(w, r, lifecycle.RoleFulfiller, func(ride *gateway.Ride, who caller) (string, string, string, bool) {
		if ride.Status != lifecycle.StatusAccepted {
			return "", "", "Ride not accepted yet", false
		}
		price := 10.0
		ride.Price = &price
		ride.Status = lifecycle.StatusCompleted
		return gateway.NotifyRideCompleted, ride.Requester, "", true
	})
}

func (g *Gateway) cancelRide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	g.rideAction(w, r, lifecycle.RoleRequester, func(ride *gateway.Ride, who caller) (string, string, string, bool) {
		if ride.Status.Terminal() {
			return "", "", "Ride already finished", false
		}
		target := ride.Fulfiller
		if target == "" {
			target = ride.Requester
		}
		ride.Status = lifecycle.StatusCancelled
		return gateway.NotifyRideCancelled, target, "", true
	})
}

// rideAction factors the shared shape of the four transition endpoints:
// authenticate, check the role, apply the mutation, notify, broadcast.
func (g *Gateway) rideAction(w http.ResponseWriter, r *http.Request, requiredRole lifecycle.Role, apply func(*gateway.Ride, caller) (notifType, notifyUser, denial string, ok bool)) {
	who, ok := g.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	if who.role != requiredRole {
		writeDetail(w, http.StatusForbidden, "Role not permitted for this action")
		return
	}

	g.mu.Lock()
	ride, found := g.rides[mux.Vars(r)["id"]]
	if !found {
		g.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Ride not found")
		return
	}
	notifType, notifyUser, denial, applied := apply(&ride, who)
	if !applied {
		g.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, denial)
		return
	}
	ride.UpdatedAt = g.now().UTC().Format(time.RFC3339Nano)
	g.rides[ride.ID] = ride
	notification := g.notifyLocked(notifyUser, ride, notifType,
		notificationTitles[notifType],
		"Ride from "+ride.Origin+" to "+ride.Destination+" is now "+string(ride.Status)+".")
	g.mu.Unlock()

	g.broadcast(notifType, ride, notification)
	writeJSON(w, http.StatusOK, ride)
}

// OfferRide simulates the matcher assigning a requested ride to a fulfiller,
// which only ever happens server-side. Tests and the simulator use it to
// move a ride into the offered state.
func (g *Gateway) OfferRide(rideID, fulfiller string) bool {
	g.mu.Lock()
	ride, ok := g.rides[rideID]
	if !ok || ride.Status != lifecycle.StatusRequested {
		g.mu.Unlock()
		return false
	}
	ride.Fulfiller = fulfiller
	ride.Status = lifecycle.StatusOffered
	ride.UpdatedAt = g.now().UTC().Format(time.RFC3339Nano)
	g.rides[ride.ID] = ride
	notification := g.notifyLocked(fulfiller, ride, gateway.NotifyRideOffered,
		"New Ride Offer",
		"New ride available from "+ride.Origin+" to "+ride.Destination+".")
	g.mu.Unlock()

	g.broadcast(gateway.NotifyRideOffered, ride, notification)
	return true
}

// Ride returns a copy of the stored ride.
func (g *Gateway) Ride(id string) (gateway.Ride, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ride, ok := g.rides[id]
	return ride, ok
}

// SetRide overwrites a stored ride, letting tests stage server-side states
// the REST surface cannot reach directly.
func (g *Gateway) SetRide(ride gateway.Ride) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rides[ride.ID] = ride
}

// AddNotification injects a notification directly, bypassing ride flow.
func (g *Gateway) AddNotification(n gateway.Notification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = g.now().UTC().Format(time.RFC3339Nano)
	}
	g.notifications = append(g.notifications, n)
}

var notificationTitles = map[string]string{
	gateway.NotifyRideRequested: "Ride Request Received",
	gateway.NotifyRideOffered:   "New Ride Offer",
	gateway.NotifyRideAccepted:  "Ride Accepted",
	gateway.NotifyRideRejected:  "Ride Rejected",
	gateway.NotifyRideCompleted: "Ride Completed",
	gateway.NotifyRideCancelled: "Ride Cancelled",
}

func (g *Gateway) notifyLocked(user string, ride gateway.Ride, notifType, title, message string) gateway.Notification {
	n := gateway.Notification{
		ID:        uuid.NewString(),
		UserID:    user,
		RideID:    ride.ID,
		Type:      notifType,
		Title:     title,
		Message:   message,
		CreatedAt: g.now().UTC().Format(time.RFC3339Nano),
	}
	g.notifications = append(g.notifications, n)
	return n
}

func (g *Gateway) listNotifications(w http.ResponseWriter, r *http.Request) {
	g.respondNotifications(w, r, false)
}

func (g *Gateway) listUnread(w http.ResponseWriter, r *http.Request) {
	g.respondNotifications(w, r, true)
}

func (g *Gateway) respondNotifications(w http.ResponseWriter, r *http.Request, unreadOnly bool) {
	who, ok := g.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	g.mu.Lock()
	list := gateway.NotificationList{Notifications: []gateway.Notification{}}
	for _, n := range g.notifications {
		if n.UserID != who.user {
			continue
		}
		if !n.Read {
			list.UnreadCount++
		}
		if unreadOnly && n.Read {
			continue
		}
		list.Notifications = append(list.Notifications, n)
	}
	g.mu.Unlock()
	sort.Slice(list.Notifications, func(i, j int) bool {
		if list.Notifications[i].CreatedAt != list.Notifications[j].CreatedAt {
			return list.Notifications[i].CreatedAt > list.Notifications[j].CreatedAt
		}
		return list.Notifications[i].ID < list.Notifications[j].ID
	})
	list.Count = len(list.Notifications)
	writeJSON(w, http.StatusOK, list)
}

func (g *Gateway) pollNotifications(w http.ResponseWriter, r *http.Request) {
	who, ok := g.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	now := g.now().UTC()
	since := now.Add(-5 * time.Minute)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid 'since' timestamp format")
			return
		}
		since = parsed
	}

	g.mu.Lock()
	poll := gateway.NotificationPoll{
		Notifications: []gateway.Notification{},
		Timestamp:     now.Format(time.RFC3339Nano),
	}
	for _, n := range g.notifications {
		if n.UserID != who.user {
			continue
		}
		if created := n.ParsedCreatedAt(); created.After(since) {
			poll.Notifications = append(poll.Notifications, n)
		}
	}
	g.mu.Unlock()
	poll.Count = len(poll.Notifications)
	writeJSON(w, http.StatusOK, poll)
}

func (g *Gateway) markRead(w http.ResponseWriter, r *http.Request) {
	who, ok := g.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	id := mux.Vars(r)["id"]
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, n := range g.notifications {
		if n.ID == id && n.UserID == who.user {
			g.notifications[i].Read = true
			writeJSON(w, http.StatusOK, g.notifications[i])
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Notification not found")
}

func (g *Gateway) markAllRead(w http.ResponseWriter, r *http.Request) {
	who, ok := g.authenticate(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	g.mu.Lock()
	updated := 0
	for i, n := range g.notifications {
		if n.UserID == who.user && !n.Read {
			g.notifications[i].Read = true
			updated++
		}
	}
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"detail": updated})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
