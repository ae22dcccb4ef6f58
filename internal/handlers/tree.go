package handlers

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/middleware"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/pkg/response"
)

// TreeHandler serves a family's members, layout and member writes. Every
// request opens a fresh controller for the caller.
type TreeHandler struct {
	trees *services.TreeService
}

func NewTreeHandler(trees *services.TreeService) *TreeHandler {
	return &TreeHandler{trees: trees}
}

type treeResponse struct {
	Family     *models.Family    `json:"family"`
	CanEdit    bool              `json:"can_edit"`
	Members    []models.Member   `json:"members"`
	Layout     *genealogy.Layout `json:"layout"`
	SelfLink   *string           `json:"self_link"`
	SelfInTree bool              `json:"self_in_tree"`
}

func (h *TreeHandler) open(c *gin.Context) (*services.TreeController, *models.Family, bool) {
	ctrl, family, err := h.trees.Open(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return nil, nil, false
	}
	return ctrl, family, true
}

// GetTree returns members, generations and connectors
// GET /api/families/:id/tree
func (h *TreeHandler) GetTree(c *gin.Context) {
	ctrl, family, ok := h.open(c)
	if !ok {
		return
	}
	response.Success(c, treeResponse{
		Family:     family,
		CanEdit:    ctrl.CanEdit(),
		Members:    ctrl.Members(),
		Layout:     ctrl.Layout(),
		SelfLink:   ctrl.Store().SelfLink(),
		SelfInTree: ctrl.IsLinked(),
	})
}

// GetTreeSVG renders the layout as an SVG document
// GET /api/families/:id/tree.svg
func (h *TreeHandler) GetTreeSVG(c *gin.Context) {
	ctrl, _, ok := h.open(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "image/svg+xml; charset=utf-8", []byte(ctrl.Layout().SVG()))
}

// GetDescendants lists the members below a member, nearest first
// GET /api/families/:id/members/:memberID/descendants
func (h *TreeHandler) GetDescendants(c *gin.Context) {
	ctrl, _, ok := h.open(c)
	if !ok {
		return
	}
	ids, err := ctrl.Descendants(c.Param("memberID"))
	if err != nil {
		fail(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	response.Success(c, gin.H{"member_id": c.Param("memberID"), "descendants": ids})
}

// GetCandidates lists the members offered for also-child-of and
// also-parent-of when adding next to a member
// GET /api/families/:id/members/:memberID/candidates?kind=child
func (h *TreeHandler) GetCandidates(c *gin.Context) {
	kind, err := genealogy.ParseKind(c.Query("kind"))
	if err != nil {
		fail(c, err)
		return
	}
	ctrl, _, ok := h.open(c)
	if !ok {
		return
	}
	alsoChildOf, alsoParentOf, err := ctrl.Candidates(kind, c.Param("memberID"))
	if err != nil {
		fail(c, err)
		return
	}
	if alsoChildOf == nil {
		alsoChildOf = []models.Member{}
	}
	if alsoParentOf == nil {
		alsoParentOf = []models.Member{}
	}
	response.Success(c, gin.H{
		"kind":           kind,
		"also_child_of":  alsoChildOf,
		"also_parent_of": alsoParentOf,
	})
}

// AddMember applies an add intent. The body is JSON, or multipart with the
// intent JSON in the "data" field and an optional "photo" file.
// POST /api/families/:id/members
func (h *TreeHandler) AddMember(c *gin.Context) {
	var req services.AddMemberRequest
	photo, closePhoto, ok := bindWithPhoto(c, &req)
	if !ok {
		return
	}
	defer closePhoto()

	ctrl, _, ok := h.open(c)
	if !ok {
		return
	}
	intent, err := ctrl.Intent(req)
	if err != nil {
		fail(c, err)
		return
	}
	result, err := ctrl.Add(c.Request.Context(), intent, photo)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, result)
}

// EditMember replaces the editable fields of a member
// PUT /api/families/:id/members/:memberID
func (h *TreeHandler) EditMember(c *gin.Context) {
	var req services.EditMemberRequest
	photo, closePhoto, ok := bindWithPhoto(c, &req)
	if !ok {
		return
	}
	defer closePhoto()

	ctrl, _, ok := h.open(c)
	if !ok {
		return
	}
	result, err := ctrl.Edit(c.Request.Context(), c.Param("memberID"), req, photo)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// DeleteMember removes a member and everyone below it
// DELETE /api/families/:id/members/:memberID
func (h *TreeHandler) DeleteMember(c *gin.Context) {
	ctrl, _, ok := h.open(c)
	if !ok {
		return
	}
	ids, err := ctrl.Delete(c.Request.Context(), c.Param("memberID"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": ids})
}

// UploadPhoto replaces a member's photo and keeps its other fields
// POST /api/families/:id/members/:memberID/photo
func (h *TreeHandler) UploadPhoto(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		response.BadRequest(c, "photo file is required")
		return
	}
	photo, closePhoto, err := openPhoto(file)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer closePhoto()

	ctrl, _, ok := h.open(c)
	if !ok {
		return
	}
	current, found := ctrl.Store().Get(c.Param("memberID"))
	if !found {
		fail(c, services.ErrMemberNotFound)
		return
	}
	result, err := ctrl.Edit(c.Request.Context(), current.ID, services.EditMemberRequest{
		Name:     current.Name,
		Born:     current.Born,
		Died:     current.Died,
		Relation: current.Relation,
		Note:     current.Note,
	}, photo)
	if err != nil {
		fail(c, err)
		return
	}
	if result.PhotoError != "" {
		response.Error(c, response.NewBadRequest(result.PhotoError).WithData(result))
		return
	}
	response.Success(c, result)
}

// LinkSelf records that the caller is this member
// POST /api/families/:id/members/:memberID/this-is-me
func (h *TreeHandler) LinkSelf(c *gin.Context) {
	ctrl, _, ok := h.open(c)
	if !ok {
		return
	}
	memberID := c.Param("memberID")
	if _, found := ctrl.Store().Get(memberID); !found {
		fail(c, services.ErrMemberNotFound)
		return
	}
	if err := ctrl.LinkSelf(c.Request.Context(), memberID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"self_link": memberID, "self_in_tree": ctrl.IsLinked()})
}

// Relations lists the relation labels offered to clients
// GET /api/members/relations
func Relations(c *gin.Context) {
	response.Success(c, gin.H{
		"relations": genealogy.Relations,
		"kinds": []genealogy.Kind{
			genealogy.KindRoot, genealogy.KindChild, genealogy.KindSibling,
			genealogy.KindParent, genealogy.KindSpouse,
		},
		"min_year": genealogy.MinYear,
		"max_year": genealogy.MaxYear,
	})
}

// bindWithPhoto binds a JSON body, or a multipart form whose "data" field
// holds the JSON and whose optional "photo" field holds an image.
func bindWithPhoto(c *gin.Context, obj interface{}) (*services.PhotoUpload, func(), bool) {
	noop := func() {}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(obj); err != nil {
			response.BadRequest(c, err.Error())
			return nil, noop, false
		}
		return nil, noop, true
	}

	if err := binding.JSON.BindBody([]byte(c.PostForm("data")), obj); err != nil {
		response.BadRequest(c, "data: "+err.Error())
		return nil, noop, false
	}
	file, err := c.FormFile("photo")
	if err == http.ErrMissingFile {
		return nil, noop, true
	}
	if err != nil {
		response.BadRequest(c, err.Error())
		return nil, noop, false
	}
	photo, closePhoto, err := openPhoto(file)
	if err != nil {
		response.BadRequest(c, err.Error())
		return nil, noop, false
	}
	return photo, closePhoto, true
}

func openPhoto(file *multipart.FileHeader) (*services.PhotoUpload, func(), error) {
	f, err := file.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &services.PhotoUpload{Filename: file.Filename, Reader: f}, func() { f.Close() }, nil
}
