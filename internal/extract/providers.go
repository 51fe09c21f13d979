package extract

import "strings"

type googleExtractor struct{}

func (googleExtractor) Provider() string { return "google" }

func (googleExtractor) Extract(attrs map[string]any) (Identity, error) {
	id := Identity{
		SubjectID:     firstString(attrs, "sub", "id"),
		Email:         firstString(attrs, "email"),
		FullName:      firstString(attrs, "name"),
		FirstName:     firstString(attrs, "given_name"),
		LastName:      firstString(attrs, "family_name"),
		AvatarURL:     firstString(attrs, "picture"),
		EmailVerified: boolAt(attrs, "email_verified"),
	}
	if id.SubjectID == "" {
		return Identity{}, ErrMissingSubject
	}
	if id.Username == "" && id.Email != "" {
		id.Username = strings.SplitN(id.Email, "@", 2)[0]
	}
	return id, nil
}

type oneIDExtractor struct{}

func (oneIDExtractor) Provider() string { return "oneid" }

func (oneIDExtractor) Extract(attrs map[string]any) (Identity, error) {
	id := Identity{
		SubjectID: firstString(attrs, "pin", "user_id"),
		Email:     firstString(attrs, "email"),
		Username:  firstString(attrs, "user_id", "pin"),
		FullName:  firstString(attrs, "full_name"),
		FirstName: firstString(attrs, "first_name"),
		LastName:  firstString(attrs, "sur_name"),
		Phone:     firstString(attrs, "mob_phone_no"),
		BirthDate: firstString(attrs, "birth_date"),
	}
	if id.SubjectID == "" {
		return Identity{}, ErrMissingSubject
	}
	if id.FullName == "" {
		id.FullName = joinName(id.LastName, id.FirstName)
	}
	// OneID asserts government-verified contact data.
	id.PhoneVerified = id.Phone != ""
	id.EmailVerified = id.Email != ""
	return id, nil
}

type hemisEmployeeExtractor struct{}

func (hemisEmployeeExtractor) Provider() string { return "hemis" }

func (hemisEmployeeExtractor) Extract(attrs map[string]any) (Identity, error) {
	id := Identity{
		SubjectID:   firstString(attrs, "employee_id_number", "id"),
		DirectoryID: firstString(attrs, "id"),
		Email:       firstString(attrs, "email"),
		Username:    firstString(attrs, "employee_id_number", "login"),
		FirstName:   firstString(attrs, "firstname", "first_name"),
		LastName:    firstString(attrs, "secondname", "second_name"),
		Phone:       firstString(attrs, "phone"),
		AvatarURL:   firstString(attrs, "picture", "image"),
		BirthDate:   firstString(attrs, "birth_date"),
		Department:  firstString(attrs, "department.name", "department"),
	}
	if id.SubjectID == "" {
		return Identity{}, ErrMissingSubject
	}
	id.FullName = firstString(attrs, "full_name")
	if id.FullName == "" {
		id.FullName = joinName(id.LastName, id.FirstName, firstString(attrs, "thirdname", "patronymic"))
	}
	return id, nil
}

type hemisStudentExtractor struct{}

func (hemisStudentExtractor) Provider() string { return "student" }

func (hemisStudentExtractor) Extract(attrs map[string]any) (Identity, error) {
	id := Identity{
		SubjectID:   firstString(attrs, "student_id_number", "id"),
		DirectoryID: firstString(attrs, "id"),
		Email:       firstString(attrs, "email"),
		Username:    firstString(attrs, "student_id_number", "login"),
		FirstName:   firstString(attrs, "first_name", "firstname"),
		LastName:    firstString(attrs, "second_name", "secondname"),
		Phone:       firstString(attrs, "phone"),
		AvatarURL:   firstString(attrs, "image"),
		BirthDate:   firstString(attrs, "birth_date"),
		Department:  firstString(attrs, "department.name", "faculty.name"),
	}
	if id.SubjectID == "" {
		return Identity{}, ErrMissingSubject
	}
	id.FullName = firstString(attrs, "full_name")
	if id.FullName == "" {
		id.FullName = joinName(id.LastName, id.FirstName, firstString(attrs, "third_name"))
	}
	return id, nil
}

// genericExtractor covers providers without a dedicated mapping.
type genericExtractor struct {
	name string
}

func (g genericExtractor) Provider() string { return g.name }

func (genericExtractor) Extract(attrs map[string]any) (Identity, error) {
	id := Identity{
		SubjectID:     firstString(attrs, "sub", "id", "user_id", "uid"),
		Email:         firstString(attrs, "email"),
		Username:      firstString(attrs, "username", "preferred_username", "login"),
		FullName:      firstString(attrs, "name", "full_name"),
		FirstName:     firstString(attrs, "given_name", "first_name"),
		LastName:      firstString(attrs, "family_name", "last_name"),
		Phone:         firstString(attrs, "phone", "phone_number"),
		AvatarURL:     firstString(attrs, "picture", "avatar", "avatar_url"),
		BirthDate:     firstString(attrs, "birth_date", "birthdate"),
		EmailVerified: boolAt(attrs, "email_verified"),
		PhoneVerified: boolAt(attrs, "phone_number_verified"),
	}
	if id.SubjectID == "" {
		return Identity{}, ErrMissingSubject
	}
	return id, nil
}
