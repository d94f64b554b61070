package websocket

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"deadstock/database"
	"deadstock/models"
	"deadstock/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// findUser loads the account behind a token. Tests replace it.
var findUser = func(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := database.DB().Collection(database.Users).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

type Client struct {
	userID   string
	userRole string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
}

// HandleWebSocket authenticates with ?token= (browsers cannot set headers on
// upgrade requests) or a bearer header, then joins the hub.
func HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if tokenString == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Authentication token required")
		return
	}

	claims, err := utils.ValidateJWT(tokenString)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token subject")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	user, err := findUser(ctx, userID)
	cancel()
	if err != nil {
		log.Printf("websocket: user %s not found: %v", userID.Hex(), err)
		utils.RespondWithError(w, http.StatusUnauthorized, "User not found")
		return
	}
	if !user.IsActive {
		utils.RespondWithError(w, http.StatusForbidden, "Account is deactivated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		userID:   user.ID.Hex(),
		userRole: user.Role,
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      hub,
	}
	client.hub.register <- client

	if welcome, err := encode("welcome", map[string]string{
		"message": "Connected to live updates",
		"userID":  client.userID,
		"role":    client.userRole,
	}); err == nil {
		client.send <- welcome
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error for user %s: %v", c.userID, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
