package model

// Student is the authenticated student profile.
type Student struct {
	ID      int    `json:"id"`
	NISN    string `json:"nisn"`
	Name    string `json:"name"`
	ClassID int    `json:"class_id"`
}

// StudentLoginRequest is the payload for the student login endpoint.
type StudentLoginRequest struct {
	NISN     string `json:"nisn" validate:"required,min=4,max=20"`
	Password string `json:"password" validate:"required,min=4"`
}

// StudentLoginResult is the decoded login response.
type StudentLoginResult struct {
	Token   string  `json:"token" validate:"required"`
	Student Student `json:"student"`
}
