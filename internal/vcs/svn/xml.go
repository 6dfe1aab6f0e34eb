package svn

import (
	"encoding/xml"
	"fmt"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
	"github.com/pulsepoint/svnsync/pkg/models"
)

// statusXML is the document printed by `svn status --xml`
type statusXML struct {
	Targets []struct {
		Path    string `xml:"path,attr"`
		Entries []struct {
			Path     string `xml:"path,attr"`
			WCStatus struct {
				Item           string `xml:"item,attr"`
				Props          string `xml:"props,attr"`
				TreeConflicted bool   `xml:"tree-conflicted,attr"`
			} `xml:"wc-status"`
		} `xml:"entry"`
	} `xml:"target"`
}

// infoXML is the document printed by `svn info --xml`
type infoXML struct {
	Entries []infoEntry `xml:"entry"`
}

type infoEntry struct {
	Path       string `xml:"path,attr"`
	Kind       string `xml:"kind,attr"`
	Revision   int64  `xml:"revision,attr"`
	URL        string `xml:"url"`
	Repository struct {
		Root string `xml:"root"`
	} `xml:"repository"`
	WCInfo struct {
		WCRoot string `xml:"wcroot-abspath"`
	} `xml:"wc-info"`
	Conflicts    []conflictXML    `xml:"conflict"`
	TreeConflict *treeConflictXML `xml:"tree-conflict"`
}

// conflictXML covers both the 1.8+ typed form and the older untyped text form
type conflictXML struct {
	Type      string `xml:"type,attr"`
	Operation string `xml:"operation,attr"`
	Action    string `xml:"action,attr"`
	Reason    string `xml:"reason,attr"`
	PrevWC    string `xml:"prev-wc-file"`
	PropFile  string `xml:"prop-file"`
}

type treeConflictXML struct {
	Victim    string `xml:"victim,attr"`
	Operation string `xml:"operation,attr"`
	Action    string `xml:"action,attr"`
	Reason    string `xml:"reason,attr"`
}

func parseStatus(data []byte) ([]interfaces.StatusEntry, error) {
	var doc statusXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse svn status output: %w", err)
	}

	var out []interfaces.StatusEntry
	for _, target := range doc.Targets {
		for _, e := range target.Entries {
			status := contentStatus(e.WCStatus.Item)
			if e.WCStatus.Props == "conflicted" {
				status = interfaces.StatusConflicted
			}
			out = append(out, interfaces.StatusEntry{
				Path:          e.Path,
				ContentStatus: status,
				TreeConflict:  e.WCStatus.TreeConflicted,
			})
		}
	}
	return out, nil
}

func parseInfo(data []byte) ([]infoEntry, error) {
	var doc infoXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse svn info output: %w", err)
	}
	return doc.Entries, nil
}

func contentStatus(item string) interfaces.ContentStatus {
	switch item {
	case "normal", "external":
		return interfaces.StatusNormal
	case "modified", "replaced", "obstructed", "incomplete":
		return interfaces.StatusModified
	case "added":
		return interfaces.StatusAdded
	case "deleted":
		return interfaces.StatusDeleted
	case "conflicted":
		return interfaces.StatusConflicted
	case "unversioned":
		return interfaces.StatusUnversioned
	case "missing":
		return interfaces.StatusMissing
	case "ignored":
		return interfaces.StatusIgnored
	default:
		return interfaces.StatusNormal
	}
}

// conflictKind classifies the conflict recorded on an info entry. Tree
// conflicts win over text and property conflicts on the same node.
func (e infoEntry) conflictKind() (models.ConflictKind, bool) {
	if tc := e.TreeConflict; tc != nil {
		return models.ConflictKind{
			Type:   models.ConflictTypeTree,
			Action: conflictAction(tc.Action),
			Reason: conflictReason(tc.Reason),
		}, true
	}

	var found *models.ConflictKind
	for _, c := range e.Conflicts {
		var kind models.ConflictKind
		switch {
		case c.Type == "tree":
			return models.ConflictKind{
				Type:   models.ConflictTypeTree,
				Action: conflictAction(c.Action),
				Reason: conflictReason(c.Reason),
			}, true
		case c.Type == "property" || (c.Type == "" && c.PropFile != ""):
			kind = models.ConflictKind{Type: models.ConflictTypeProperty, Action: models.ActionEdit, Reason: models.ReasonEdited}
		default:
			kind = models.ConflictKind{Type: models.ConflictTypeText, Action: models.ActionEdit, Reason: models.ReasonEdited}
		}
		if found == nil || kind.Type == models.ConflictTypeText {
			found = &kind
		}
	}
	if found == nil {
		return models.ConflictKind{}, false
	}
	return *found, true
}

func conflictAction(s string) models.ConflictAction {
	switch s {
	case "add":
		return models.ActionAdd
	case "delete":
		return models.ActionDelete
	case "replace":
		return models.ActionReplace
	default:
		return models.ActionEdit
	}
}

func conflictReason(s string) models.ConflictReason {
	switch s {
	case "edit", "edited":
		return models.ReasonEdited
	case "obstruction", "obstructed":
		return models.ReasonObstructed
	case "delete", "deleted", "moved-away":
		return models.ReasonDeleted
	case "missing":
		return models.ReasonMissing
	case "unversioned":
		return models.ReasonUnversioned
	case "add", "added", "moved-here":
		return models.ReasonAdded
	case "replace", "replaced":
		return models.ReasonReplaced
	default:
		return models.ConflictReason(s)
	}
}
