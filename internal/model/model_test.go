package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"naive", "2024-01-15T10:30:00", want},
		{"naive with micros", "2024-01-15T10:30:00.000000", want},
		{"zulu", "2024-01-15T10:30:00Z", want},
		{"offset", "2024-01-15T13:30:00+03:00", want},
		{"space separated", "2024-01-15 10:30:00", want},
		{"empty", "", time.Time{}},
		{"garbage", "yesterday", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTime(tt.in)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses() {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, TaskStatus("backlog").Valid())
}

func TestComplexityValid(t *testing.T) {
	for _, c := range Complexities() {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Complexity("urgent").Valid())
}

func TestSessionValid(t *testing.T) {
	assert.False(t, Session{}.Valid())
	assert.False(t, Session{Token: "t"}.Valid())
	s := Session{Token: "t", UserID: 7, Username: "alice"}
	assert.True(t, s.Valid())
	assert.Equal(t, UserBrief{ID: 7, Username: "alice"}, s.User())
}

func TestProjectDetailHasMember(t *testing.T) {
	p := ProjectDetail{Members: []Member{{ID: 1, User: UserBrief{ID: 5, Username: "bob"}}}}
	assert.True(t, p.HasMember(5))
	assert.False(t, p.HasMember(6))
}

func TestTaskAssigneeID(t *testing.T) {
	assert.Nil(t, Task{}.AssigneeID())
	id := Task{Assignee: &UserBrief{ID: 3}}.AssigneeID()
	if assert.NotNil(t, id) {
		assert.Equal(t, int64(3), *id)
	}
}
