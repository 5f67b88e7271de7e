package model

import (
	"errors"
	"fmt"
	"time"
)

// MaxSubscribedTeams caps the team list per subscriber.
const MaxSubscribedTeams = 20

// Subscription is one subscriber and their team set. Deactivated rather than
// physically removed.
type Subscription struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Teams     []string  `json:"teams"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSubscription(userID, username string) Subscription {
	now := time.Now()
	return Subscription{
		UserID:    userID,
		Username:  username,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddTeam appends a team to the subscription set. Adding a team that is
// already present is a no-op.
func (s *Subscription) AddTeam(name string) error {
	if err := ValidateTeamName(name); err != nil {
		return err
	}
	if s.HasTeam(name) {
		return nil
	}
	if len(s.Teams) >= MaxSubscribedTeams {
		return fmt.Errorf("subscription limit of %d teams reached", MaxSubscribedTeams)
	}
	s.Teams = append(s.Teams, name)
	s.UpdatedAt = time.Now()
	return nil
}

// RemoveTeam drops a team from the set, reporting whether it was present.
func (s *Subscription) RemoveTeam(name string) bool {
	for i, t := range s.Teams {
		if t == name {
			s.Teams = append(s.Teams[:i], s.Teams[i+1:]...)
			s.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

func (s Subscription) HasTeam(name string) bool {
	for _, t := range s.Teams {
		if t == name {
			return true
		}
	}
	return false
}

func (s Subscription) Validate() error {
	if err := ValidateUserID(s.UserID); err != nil {
		return err
	}
	if len(s.Teams) > MaxSubscribedTeams {
		return errors.New("too many subscribed teams")
	}
	for _, t := range s.Teams {
		if err := ValidateTeamName(t); err != nil {
			return fmt.Errorf("team %q: %w", t, err)
		}
	}
	return nil
}
