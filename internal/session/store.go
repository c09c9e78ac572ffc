package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxseedlab/nyukoku/internal/application"
	"github.com/foxseedlab/nyukoku/internal/verifier"
)

const auditTimeLayout = "2006-01-02 15:04:05"

type Answers struct {
	Edition     verifier.Edition
	Identity    string
	Nationality string
	// Period holds the stay period and purpose as typed.
	Period     string
	Companions []string
	Sponsors   []string
}

// Session is owned by the Store. Fields are read and written only while mu is held.
type Session struct {
	mu sync.Mutex

	ID          string
	ThreadID    string
	ApplicantID string

	State          State
	Answers        Answers
	AuditLog       []string
	StartedAt      time.Time
	LastActivityAt time.Time

	// Set while waiting on sponsors.
	RoundID     string
	Application *application.Application

	loc *time.Location
}

func (s *Session) logf(at time.Time, format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", at.In(s.loc).Format(auditTimeLayout), fmt.Sprintf(format, args...))
	s.AuditLog = append(s.AuditLog, line)
}

type participantKey struct {
	threadID    string
	applicantID string
}

// Store holds in-flight sessions, at most one per thread and applicant.
type Store struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	byParticipant map[participantKey]string
	loc           *time.Location
	now           func() time.Time
}

func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		sessions:      make(map[string]*Session),
		byParticipant: make(map[participantKey]string),
		loc:           loc,
		now:           time.Now,
	}
}

// Create opens a session for the pair. When one already exists it is returned with
// created set to false.
func (s *Store) Create(threadID, applicantID string) (sess *Session, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := participantKey{threadID: threadID, applicantID: applicantID}
	if id, ok := s.byParticipant[key]; ok {
		return s.sessions[id], false
	}

	now := s.now()
	sess = &Session{
		ID:             uuid.NewString(),
		ThreadID:       threadID,
		ApplicantID:    applicantID,
		State:          StateStart,
		StartedAt:      now,
		LastActivityAt: now,
		loc:            s.loc,
	}
	s.sessions[sess.ID] = sess
	s.byParticipant[key] = sess.ID
	return sess, true
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Store) FindByParticipant(threadID, applicantID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byParticipant[participantKey{threadID: threadID, applicantID: applicantID}]
	if !ok {
		return nil, false
	}
	return s.sessions[id], true
}

// Remove reports whether the session was still present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	delete(s.byParticipant, participantKey{threadID: sess.ThreadID, applicantID: sess.ApplicantID})
	return true
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep marks idle sessions as timed out and removes them. Sessions waiting on
// sponsors are exempt. The caller flushes the audit of every returned session.
func (s *Store) Sweep(now time.Time, idleThreshold time.Duration) []*Session {
	s.mu.Lock()
	candidates := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.Unlock()

	var evicted []*Session
	for _, sess := range candidates {
		sess.mu.Lock()
		idle := sess.State != StateSponsorWait &&
			!sess.State.Terminal() &&
			now.Sub(sess.LastActivityAt) > idleThreshold
		if idle {
			sess.State = StateTimedOut
			sess.logf(now, "タイムアウト (最終操作: %s)", sess.LastActivityAt.In(sess.loc).Format(auditTimeLayout))
		}
		sess.mu.Unlock()

		if idle && s.Remove(sess.ID) {
			evicted = append(evicted, sess)
		}
	}
	return evicted
}
