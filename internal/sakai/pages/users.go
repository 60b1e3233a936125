package pages

import (
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	userSearchForm   = "form#search_form"
	userSearchField  = "input#search"
	userSearchSubmit = "input#search_submit"
	userNew          = "a[title='New User']"
	userEditForm     = "form#user-form"
)

// UserList is the administration workspace's user listing.
type UserList struct {
	Frame  render.FramePath
	Search string
	Submit string
	New    string
	// Users are the rows of the current listing, keyed by id with the link
	// to each user's edit screen.
	Users map[string]string
}

func ParseUserList(page *render.Page) (UserList, error) {
	path, doc, err := landmark(page, userSearchForm)
	if err != nil {
		return UserList{}, err
	}
	base := page.Frame(path).URL

	list := UserList{
		Frame:  path,
		Search: userSearchField,
		Submit: userSearchSubmit,
		Users:  map[string]string{},
	}
	if href, ok := doc.Find(userNew).First().Attr("href"); ok {
		list.New = htmlutil.Resolve(base, href)
	}
	doc.Find(listTable).Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := htmlutil.HeaderCells(row)
		cell, ok := cells["eid"]
		if !ok {
			return
		}
		id := htmlutil.Text(cell)
		href, ok := cell.Find("a").First().Attr("href")
		if id == "" || !ok {
			return
		}
		list.Users[id] = htmlutil.Resolve(base, href)
	})
	return list, nil
}

// UserForm is the create or edit user screen. ID is empty when editing,
// the id of an existing account cannot change.
type UserForm struct {
	Frame     render.FramePath
	ID        string
	FirstName string
	LastName  string
	Email     string
	Password  string
	Confirm   string
	Type      string
	Save      string
}

func ParseUserForm(page *render.Page) (UserForm, error) {
	path, doc, err := landmark(page, userEditForm)
	if err != nil {
		return UserForm{}, err
	}
	form := doc.Find(userEditForm).First()
	for _, required := range []string{"input#first-name", "input#last-name", "input[name=eventSubmit_doSave]"} {
		if form.Find(required).Length() == 0 {
			return UserForm{}, drift("user form without %s", required)
		}
	}

	result := UserForm{
		Frame:     path,
		FirstName: "input#first-name",
		LastName:  "input#last-name",
		Save:      "input[name=eventSubmit_doSave]",
	}
	optional := map[string]*string{
		"input#eid":   &result.ID,
		"input#email": &result.Email,
		"input#pw":    &result.Password,
		"input#pw0":   &result.Confirm,
		"select#type": &result.Type,
	}
	for selector, field := range optional {
		if form.Find(selector).Length() > 0 {
			*field = selector
		}
	}
	return result, nil
}

// FillUser lists the actions that type info into the form. Fields the
// form does not carry are skipped.
func (f UserForm) FillUser(info model.UserInfo) []render.Action {
	var actions []render.Action
	set := func(selector, value string) {
		if selector != "" {
			actions = append(actions, render.SetValue{Selector: selector, Value: value})
		}
	}
	set(f.ID, info.ID)
	set(f.FirstName, info.FirstName)
	set(f.LastName, info.LastName)
	set(f.Email, info.Email)
	if info.Password != "" {
		set(f.Password, info.Password)
		set(f.Confirm, info.Password)
	}
	if f.Type != "" && info.Role != "" {
		actions = append(actions, render.Select{Selector: f.Type, Values: []string{info.Role}})
	}
	return actions
}
