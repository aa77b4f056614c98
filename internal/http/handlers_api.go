package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/talentgate/internal/domain/profile"
	apperrors "github.com/target/talentgate/internal/errors"
	"github.com/target/talentgate/internal/http/validation"
	"github.com/target/talentgate/internal/service"
	"golang.org/x/sync/errgroup"
)

// maxImageBytes bounds profile image uploads.
const maxImageBytes = 5 << 20

// ViewerHandlers serves the viewer JSON API.
type ViewerHandlers struct {
	Viewer *service.ViewerService
	Logger *slog.Logger
}

type meResponse struct {
	service.Viewer
	Profile *profile.Snapshot `json:"profile"`
}

// Me handles GET /api/me: the viewer and the active-role profile, loaded in parallel.
func (h *ViewerHandlers) Me(w http.ResponseWriter, r *http.Request) {
	store := mustStore(r)
	var (
		v    service.Viewer
		prof profile.Snapshot
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		v, err = h.Viewer.Current(ctx, store)
		return err
	})
	g.Go(func() error {
		var err error
		prof, err = h.Viewer.Profile(ctx, store)
		return err
	})
	if err := g.Wait(); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, meResponse{Viewer: v, Profile: &prof})
}

// GetProfile handles GET /api/profile.
func (h *ViewerHandlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Viewer.Profile(r.Context(), mustStore(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// UpdateProfile handles PUT /api/profile.
func (h *ViewerHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd profile.Update
	if !DecodeJSON(w, r, &upd) {
		return
	}
	if upd.Empty() {
		WriteAppError(w, apperrors.Validation("At least one field must be updated."))
		return
	}
	if err := validateProfileUpdate(upd); err != nil {
		WriteAppError(w, err)
		return
	}
	p, err := h.Viewer.UpdateProfile(r.Context(), mustStore(r), upd)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// UploadImage handles POST /api/profile/image (multipart, field "image").
func (h *ViewerHandlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	img, err := readImage(w, r)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	p, err := h.Viewer.UploadProfileImage(r.Context(), mustStore(r), img)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func validateProfileUpdate(u profile.Update) error {
	fv := validation.New()
	if u.Headline != nil {
		fv.Validate("headline", *u.Headline, validation.MaxLen("Headline", 120))
	}
	if u.Bio != nil {
		fv.Validate("bio", *u.Bio, validation.MaxLen("Bio", 2000))
	}
	if u.Location != nil {
		fv.Validate("location", *u.Location, validation.MaxLen("Location", 120))
	}
	if u.Company != nil {
		fv.Validate("company", *u.Company, validation.Required("Company", 120))
	}
	fv.Each("skills", u.Skills, 50, validation.Required("Skill", 40))
	fv.Each("expertise", u.Expertise, 20, validation.Required("Expertise", 60))
	return fv.Err()
}

func readImage(w http.ResponseWriter, r *http.Request) (profile.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+(1<<16))
	f, hdr, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return profile.Image{}, apperrors.ValidationField("image", "Image must be 5 MB or smaller.")
		}
		return profile.Image{}, apperrors.ValidationField("image", "An image file is required.")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return profile.Image{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Could not read the uploaded image.")
	}
	if len(data) > maxImageBytes {
		return profile.Image{}, apperrors.ValidationField("image", "Image must be 5 MB or smaller.")
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return profile.Image{}, apperrors.ValidationField("image", "Only image files can be uploaded.")
	}
	return profile.Image{Filename: hdr.Filename, ContentType: ct, Data: data}, nil
}
