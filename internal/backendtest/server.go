// Package backendtest runs an in-memory implementation of the document Q&A
// backend contract for tests. It counts hits per route so tests can assert
// that a locally rejected operation never reached the network.
package backendtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const isoLayout = "2006-01-02T15:04:05.000000"

type user struct {
	ID        string
	Username  string
	Email     string
	Hash      []byte
	CreatedAt time.Time
}

type document struct {
	ID         string
	UserID     string
	Filename   string
	Size       int64
	Chunks     int
	UploadedAt time.Time
}

type record struct {
	ID         string
	UserID     string
	DocumentID string
	Question   string
	Answer     string
	Success    bool
	Timestamp  time.Time
}

type failure struct {
	status int
	body   gin.H
}

// Server is a fake backend. URL already includes the /api prefix.
type Server struct {
	URL string

	srv    *httptest.Server
	secret []byte

	mu        sync.Mutex
	epoch     int
	users     map[string]*user // by email
	docs      []*document      // upload order
	history   []*record        // most recent first
	summaries int
	hits      map[string]int
	failures  map[string][]failure
	gates     map[string][]chan struct{}
}

// New starts a fake backend and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &Server{
		secret:   []byte("backendtest-secret"),
		users:    make(map[string]*user),
		hits:     make(map[string]int),
		failures: make(map[string][]failure),
		gates:    make(map[string][]chan struct{}),
	}
	s.srv = httptest.NewServer(s.router())
	s.URL = s.srv.URL + "/api"
	t.Cleanup(s.srv.Close)
	return s
}

// Close stops the server early, e.g. to simulate a network failure.
func (s *Server) Close() { s.srv.Close() }

// Hits returns how many requests reached route, e.g. Hits("POST", "/api/qa/ask").
func (s *Server) Hits(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+route]
}

// TotalHits returns the number of requests received on any route.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

// FailNext makes the next request on route answer with status and body.
// A nil body sends an empty object.
func (s *Server) FailNext(method, route string, status int, body gin.H) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if body == nil {
		body = gin.H{}
	}
	key := method + " " + route
	s.failures[key] = append(s.failures[key], failure{status: status, body: body})
}

// Hold blocks the next request on route until the returned release func runs.
func (s *Server) Hold(method, route string) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	key := method + " " + route
	s.gates[key] = append(s.gates[key], ch)
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// ExpireSessions invalidates every token issued so far; later protected calls get 401.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
}

// AddUser registers a user directly and returns its id.
func (s *Server) AddUser(username, email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{ID: uuid.NewString(), Username: username, Email: strings.ToLower(email), Hash: hash(password), CreatedAt: time.Now().UTC()}
	s.users[u.Email] = u
	return u.ID
}

// hash uses bcrypt's minimum cost.
func hash(password string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}

// Token mints a valid token for userID.
func (s *Server) Token(userID string) string {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	tok, err := s.sign(userID, epoch)
	if err != nil {
		panic(err)
	}
	return tok
}

func (s *Server) sign(userID string, epoch int) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID,
		"epoch": epoch,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(s.track)
	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "AI Document Q&A System is running", "version": "1.0.0"})
	})
	auth := api.Group("/auth")
	auth.POST("/register", s.register)
	auth.POST("/login", s.login)
	auth.GET("/profile", s.requireAuth, s.profile)

	docs := api.Group("/documents", s.requireAuth)
	docs.GET("/list", s.listDocuments)
	docs.POST("/upload", s.uploadDocument)
	docs.GET("/:id", s.getDocument)
	docs.DELETE("/:id", s.deleteDocument)

	qa := api.Group("/qa", s.requireAuth)
	qa.POST("/ask", s.ask)
	qa.POST("/summarize/:id", s.summarize)
	qa.GET("/history", s.listHistory)
	qa.DELETE("/history/:id", s.deleteHistory)
	return r
}

// track counts the hit, then applies any held gate or injected failure.
func (s *Server) track(c *gin.Context) {
	key := c.Request.Method + " " + c.FullPath()
	s.mu.Lock()
	s.hits[key]++
	var gate chan struct{}
	if gs := s.gates[key]; len(gs) > 0 {
		gate, s.gates[key] = gs[0], gs[1:]
	}
	var fail *failure
	if fs := s.failures[key]; len(fs) > 0 {
		f := fs[0]
		fail, s.failures[key] = &f, fs[1:]
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	if fail != nil {
		c.AbortWithStatusJSON(fail.status, fail.body)
		return
	}
	c.Next()
}

func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Missing Authorization Header"})
		return
	}
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.secret, nil }, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Token has expired"})
		return
	}
	claims, _ := tok.Claims.(jwt.MapClaims)
	epoch, _ := claims["epoch"].(float64)
	sub, _ := claims.GetSubject()
	s.mu.Lock()
	current := s.epoch
	s.mu.Unlock()
	if int(epoch) != current || sub == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Token has expired"})
		return
	}
	c.Set("user_id", sub)
	c.Next()
}

func userJSON(u *user) gin.H {
	return gin.H{"user_id": u.ID, "username": u.Username, "email": u.Email}
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	if len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	s.mu.Lock()
	if _, exists := s.users[email]; exists {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}
	u := &user{ID: uuid.NewString(), Username: strings.TrimSpace(req.Username), Email: email, Hash: hash(req.Password), CreatedAt: time.Now().UTC()}
	s.users[email] = u
	epoch := s.epoch
	s.mu.Unlock()

	tok, err := s.sign(u.ID, epoch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "access_token": tok, "user": userJSON(u)})
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing email or password"})
		return
	}
	s.mu.Lock()
	u, ok := s.users[strings.ToLower(strings.TrimSpace(req.Email))]
	epoch := s.epoch
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.Hash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	tok, err := s.sign(u.ID, epoch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "access_token": tok, "user": userJSON(u)})
}

func (s *Server) profile(c *gin.Context) {
	id := c.GetString("user_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			out := userJSON(u)
			out["created_at"] = u.CreatedAt.Format(isoLayout)
			c.JSON(http.StatusOK, gin.H{"user": out})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
}

func docJSON(d *document) gin.H {
	return gin.H{
		"document_id":  d.ID,
		"filename":     d.Filename,
		"file_size":    d.Size,
		"chunks_count": d.Chunks,
		"uploaded_at":  d.UploadedAt.Format(isoLayout),
	}
}

func (s *Server) listDocuments(c *gin.Context) {
	id := c.GetString("user_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []gin.H{}
	for i := len(s.docs) - 1; i >= 0; i-- {
		if s.docs[i].UserID == id {
			out = append(out, docJSON(s.docs[i]))
		}
	}
	c.JSON(http.StatusOK, gin.H{"documents": out, "total": len(out)})
}

var allowedExt = map[string]bool{".pdf": true, ".docx": true, ".txt": true}

func (s *Server) uploadDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	if !allowedExt[strings.ToLower(filepath.Ext(fh.Filename))] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File type not allowed"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}
	defer f.Close()
	n, err := io.Copy(io.Discard, f)
	if err != nil || n == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not extract text from document"})
		return
	}
	d := &document{
		ID:         uuid.NewString(),
		UserID:     c.GetString("user_id"),
		Filename:   filepath.Base(fh.Filename),
		Size:       n,
		Chunks:     int((n + 999) / 1000),
		UploadedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.docs = append(s.docs, d)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, gin.H{"message": "Document uploaded successfully", "document": docJSON(d)})
}

// findDoc must be called with s.mu held.
func (s *Server) findDoc(userID, id string) (int, *document) {
	for i, d := range s.docs {
		if d.ID == id && d.UserID == userID {
			return i, d
		}
	}
	return -1, nil
}

func (s *Server) getDocument(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, d := s.findDoc(c.GetString("user_id"), c.Param("id"))
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": docJSON(d)})
}

func (s *Server) deleteDocument(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, d := s.findDoc(c.GetString("user_id"), c.Param("id"))
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	s.docs = append(s.docs[:i], s.docs[i+1:]...)
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}

func (s *Server) ask(c *gin.Context) {
	var req struct {
		Question   string `json:"question"`
		DocumentID string `json:"document_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.DocumentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing question or document_id"})
		return
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question cannot be empty"})
		return
	}
	userID := c.GetString("user_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	_, d := s.findDoc(userID, req.DocumentID)
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	rec := &record{
		ID:         uuid.NewString(),
		UserID:     userID,
		DocumentID: d.ID,
		Question:   q,
		Answer:     fmt.Sprintf("Based on %s: %s", d.Filename, q),
		Success:    true,
		Timestamp:  time.Now().UTC(),
	}
	s.history = append([]*record{rec}, s.history...)
	c.JSON(http.StatusOK, gin.H{"qa_id": rec.ID, "question": rec.Question, "answer": rec.Answer, "success": true, "timestamp": rec.Timestamp.Format(isoLayout)})
}

func (s *Server) summarize(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, d := s.findDoc(c.GetString("user_id"), c.Param("id"))
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	s.summaries++
	c.JSON(http.StatusOK, gin.H{"document_id": d.ID, "filename": d.Filename, "summary": fmt.Sprintf("Summary #%d of %s", s.summaries, d.Filename)})
}

func (s *Server) listHistory(c *gin.Context) {
	userID := c.GetString("user_id")
	docID := c.Query("document_id")
	limit := 50
	if v := c.Query("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit <= 0 {
			limit = 50
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []gin.H{}
	for _, r := range s.history {
		if r.UserID != userID || (docID != "" && r.DocumentID != docID) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, gin.H{
			"qa_id":        r.ID,
			"document_id":  r.DocumentID,
			"question":     r.Question,
			"answer":       r.Answer,
			"success":      r.Success,
			"context_used": "",
			"timestamp":    r.Timestamp.Format(isoLayout),
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": out, "total": len(out)})
}

func (s *Server) deleteHistory(c *gin.Context) {
	userID := c.GetString("user_id")
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.history {
		if r.ID == id && r.UserID == userID {
			s.history = append(s.history[:i], s.history[i+1:]...)
			c.JSON(http.StatusOK, gin.H{"message": "Q&A record deleted successfully"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Q&A record not found"})
}
