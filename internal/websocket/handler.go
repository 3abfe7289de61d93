package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/cartwise/internal/feed"
)

// SnapshotFunc loads the current contents of a workspace collection.
type SnapshotFunc func(ctx context.Context, workspaceID int64, c feed.Collection) (feed.Snapshot, error)

// HandleWebSocket upgrades GET /api/workspaces/{ws}/ws?collection=list|history
// and streams snapshots of that collection, starting with the current one.
// A snapshot error matching notFound is answered with 404 before upgrading.
func HandleWebSocket(hub *feed.Hub, current SnapshotFunc, notFound error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID, err := strconv.ParseInt(r.PathValue("ws"), 10, 64)
		if err != nil {
			http.Error(w, "invalid workspace id", http.StatusBadRequest)
			return
		}
		collection := feed.Collection(r.URL.Query().Get("collection"))
		if collection == "" {
			collection = feed.CollectionList
		}
		if !collection.Valid() {
			http.Error(w, "unknown collection", http.StatusBadRequest)
			return
		}

		// Subscribe before reading the initial snapshot so no change slips
		// between the two.
		sub := hub.Subscribe(workspaceID, collection)
		initial, err := current(r.Context(), workspaceID, collection)
		if errors.Is(err, notFound) {
			sub.Close()
			http.Error(w, "workspace not found", http.StatusNotFound)
			return
		}
		if err != nil {
			sub.Close()
			logger.Error("load snapshot", "workspace_id", workspaceID, "collection", collection, "error", err)
			http.Error(w, "failed to load snapshot", http.StatusInternalServerError)
			return
		}

		c, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Allow connections from any origin (household LAN)
		})
		if err != nil {
			sub.Close()
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer c.CloseNow()

		NewClient(c, sub).Run(r.Context(), initial)
	}
}
