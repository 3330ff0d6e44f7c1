package api

// Wire types. Timestamps stay strings here; the repositories parse them.

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

type UserBrief struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type ProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	OwnerID     int64     `json:"owner_id"`
	Owner       UserBrief `json:"owner"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

type ProjectDetail struct {
	Project
	Members []Member `json:"members"`
}

type Member struct {
	ID       int64     `json:"id"`
	User     UserBrief `json:"user"`
	JoinedAt string    `json:"joined_at"`
}

type AddMemberRequest struct {
	UserID int64 `json:"user_id"`
}

// TaskRequest is sent whole on create and update. AssigneeID has no
// omitempty: nil is encoded as null, which unassigns the task.
type TaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	Complexity  string  `json:"complexity"`
	AssigneeID  *int64  `json:"assignee_id"`
}

type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      string     `json:"status"`
	Complexity  string     `json:"complexity"`
	ProjectID   int64      `json:"project_id"`
	CreatorID   int64      `json:"creator_id"`
	Creator     UserBrief  `json:"creator"`
	AssigneeID  *int64     `json:"assignee_id"`
	Assignee    *UserBrief `json:"assignee"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
}
