package pages

import (
	"strings"

	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	participantForm   = "form#participantForm"
	removeParticipant = "input[name=selectedUsers]"
	updateParticipant = "input[name=eventSubmit_doUpdate_participant]"
	manageGroupsLink  = "a[title='Manage Groups']"
	addParticipants   = "a[title='Add Participants']"
)

// ParticipantList is the site info tool's participant listing.
type ParticipantList struct {
	Frame        render.FramePath
	Participants []model.UserInfo
	// Update saves the removal checkboxes.
	Update string
	// ManageGroups and AddParticipants are toolbar links, empty when the
	// user lacks the permission.
	ManageGroups    string
	AddParticipants string
}

// RemoveSelector is the removal checkbox of a participant.
func RemoveSelector(id string) string {
	return removeParticipant + "[value='" + cssEscape(id) + "']"
}

func cssEscape(value string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
}

// ParseParticipants reads the participant table. Names render as
// "Last, First"; rows without an id are skipped.
func ParseParticipants(page *render.Page) (ParticipantList, error) {
	path, doc, err := landmark(page, participantForm)
	if err != nil {
		return ParticipantList{}, err
	}
	base := page.Frame(path).URL

	list := ParticipantList{Frame: path}
	if doc.Find(updateParticipant).Length() > 0 {
		list.Update = updateParticipant
	}
	if href, ok := doc.Find(manageGroupsLink).First().Attr("href"); ok {
		list.ManageGroups = htmlutil.Resolve(base, href)
	}
	if href, ok := doc.Find(addParticipants).First().Attr("href"); ok {
		list.AddParticipants = htmlutil.Resolve(base, href)
	}

	doc.Find(participantForm).First().Find(listTable).Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := htmlutil.HeaderCells(row)
		id := cellText(cells, "id")
		if id == "" {
			return
		}
		last, first := splitSortName(cellText(cells, "name"))
		role := cellText(cells, "role")
		if cell, ok := cells["role"]; ok {
			if selected := cell.Find("option[selected]").First(); selected.Length() > 0 {
				role = htmlutil.Text(selected)
			}
		}
		list.Participants = append(list.Participants, model.UserInfo{
			ID:           id,
			FirstName:    first,
			LastName:     last,
			Email:        cellText(cells, "email"),
			CourseRole:   role,
			CourseStatus: cellText(cells, "status"),
		})
	})
	return list, nil
}

func splitSortName(name string) (last, first string) {
	last, first, found := strings.Cut(name, ",")
	if !found {
		return strings.TrimSpace(name), ""
	}
	return strings.TrimSpace(last), strings.TrimSpace(first)
}

const (
	participantUsernames = "textarea[name='content::officialAccountParticipant']"
	participantRole      = "input[type=radio][name=roleChoice][value='Student']"
	participantContinue  = "input[name=continue]"
	participantFinish    = "input[name=finish]"
)

// ParticipantWizardStep is one screen of the add participants helper.
type ParticipantWizardStep int

const (
	WizardUnknown ParticipantWizardStep = iota
	// usernames are typed in
	WizardUsernames
	// the role of the new participants is chosen
	WizardRole
	// any other intermediate screen that only needs "continue"
	WizardContinue
	// final confirmation
	WizardFinish
)

// ParticipantWizard identifies the current screen of the add participants
// helper and the controls used on it.
type ParticipantWizard struct {
	Frame     render.FramePath
	Step      ParticipantWizardStep
	Usernames string
	Role      string
	Continue  string
	Finish    string
}

func ParseParticipantWizard(page *render.Page) ParticipantWizard {
	if path, ok := FindFrame(page, participantUsernames); ok {
		return ParticipantWizard{Frame: path, Step: WizardUsernames, Usernames: participantUsernames, Continue: participantContinue}
	}
	if path, ok := FindFrame(page, participantRole); ok {
		return ParticipantWizard{Frame: path, Step: WizardRole, Role: participantRole, Continue: participantContinue}
	}
	if path, ok := FindFrame(page, participantFinish); ok {
		return ParticipantWizard{Frame: path, Step: WizardFinish, Finish: participantFinish}
	}
	if path, ok := FindFrame(page, participantContinue); ok {
		return ParticipantWizard{Frame: path, Step: WizardContinue, Continue: participantContinue}
	}
	return ParticipantWizard{}
}

const (
	groupList        = "table#groupList"
	groupRemove      = "input[name=removeGroups]"
	groupCreate      = "a[title='Create New Group']"
	groupDelete      = "input#delete-groups"
	groupConfirm     = "input#delete-groups-confirm"
	groupTitle       = "input#group_title"
	groupMembers     = "select#groupMembers"
	groupSave        = "input#save"
	groupDescription = "textarea#group_description"
)

// GroupEditor is the manage groups helper's group listing.
type GroupEditor struct {
	Frame  render.FramePath
	Groups []model.Group
	Create string
	Delete string
}

// GroupCheckbox is the selection checkbox of a group on the listing.
func GroupCheckbox(id string) string {
	return groupRemove + "[value='" + cssEscape(id) + "']"
}

func ParseGroupEditor(page *render.Page) (GroupEditor, error) {
	path, doc, err := landmark(page, groupList)
	if err != nil {
		return GroupEditor{}, err
	}
	editor := GroupEditor{Frame: path}
	if doc.Find(groupCreate).Length() > 0 {
		editor.Create = groupCreate
	}
	if doc.Find(groupDelete).Length() > 0 {
		editor.Delete = groupDelete
	}
	doc.Find(groupList).First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := htmlutil.HeaderCells(row)
		name := cellText(cells, "title")
		if name == "" {
			return
		}
		id, _ := row.Find(groupRemove).First().Attr("value")
		editor.Groups = append(editor.Groups, model.Group{Name: name, ID: id})
	})
	return editor, nil
}

// GroupForm is the new group screen.
type GroupForm struct {
	Frame       render.FramePath
	Title       string
	Description string
	Members     string
	Save        string
	// MemberIDs are the option values of the member picker.
	MemberIDs []string
}

func ParseGroupForm(page *render.Page) (GroupForm, error) {
	path, doc, err := landmark(page, groupTitle)
	if err != nil {
		return GroupForm{}, err
	}
	if doc.Find(groupMembers).Length() == 0 || doc.Find(groupSave).Length() == 0 {
		return GroupForm{}, drift("group form without %s or %s", groupMembers, groupSave)
	}
	form := GroupForm{
		Frame:   path,
		Title:   groupTitle,
		Members: groupMembers,
		Save:    groupSave,
	}
	if doc.Find(groupDescription).Length() > 0 {
		form.Description = groupDescription
	}
	doc.Find(groupMembers).First().Find("option").Each(func(_ int, opt *goquery.Selection) {
		if value, ok := opt.Attr("value"); ok && value != "" {
			form.MemberIDs = append(form.MemberIDs, value)
		}
	})
	return form, nil
}

// GroupDeleteConfirmation returns the confirm control of the delete groups
// screen.
func GroupDeleteConfirmation(page *render.Page) (render.FramePath, string, bool) {
	path, ok := FindFrame(page, groupConfirm)
	if !ok {
		return nil, "", false
	}
	return path, groupConfirm, true
}
