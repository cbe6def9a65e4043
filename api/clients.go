package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
)

const fineractDateLayout = "2006-01-02"

type NewAddress struct {
	AddressTypeId   int    `json:"address_type_id" validate:"required,gt=0"`
	Street          string `json:"street" validate:"required,notblank,max=100"`
	AddressLine1    string `json:"address_line_1" validate:"max=100"`
	City            string `json:"city" validate:"required,notblank,max=100"`
	StateProvinceId int    `json:"state_province_id"`
	CountryId       int    `json:"country_id" validate:"required,gt=0"`
	PostalCode      string `json:"postal_code" validate:"max=20"`
}

// NewClient is the client form of the app. Address is optional, but once
// present its own required fields apply.
type NewClient struct {
	OfficeId       int         `json:"office_id" validate:"required,gt=0"`
	GroupId        int         `json:"group_id" validate:"gte=0"`
	Firstname      string      `json:"firstname" validate:"required,notblank,max=50"`
	Middlename     string      `json:"middlename" validate:"max=50"`
	Lastname       string      `json:"lastname" validate:"required,notblank,max=50"`
	MobileNo       string      `json:"mobile_no" validate:"max=20"`
	ExternalId     string      `json:"external_id" validate:"max=100"`
	Active         bool        `json:"active"`
	ActivationDate string      `json:"activation_date" validate:"omitempty,datetime=2006-01-02"`
	Address        *NewAddress `json:"address"`
}

// validateNewClient runs the tag rules and the phone number check together so
// the app gets every failed field in one answer.
func validateNewClient(input NewClient) error {
	fields := map[string]string{}
	if err := utils.ValidateStruct(input); err != nil {
		var verr *utils.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for k, v := range verr.Fields {
			fields[k] = v
		}
	}
	if mobile := strings.TrimSpace(input.MobileNo); mobile != "" {
		if err := utils.ValidatePhoneNumber(mobile, utils.DefaultPhoneRegion()); err != nil {
			fields["MobileNo"] = "phone"
		}
	}
	if input.Active && input.ActivationDate == "" {
		fields["ActivationDate"] = "required_if_active"
	}
	if len(fields) > 0 {
		return &utils.ValidationError{Fields: fields}
	}
	return nil
}

func (input NewClient) toPayload(now time.Time) fineract.ClientPayload {
	p := fineract.ClientPayload{
		OfficeID:        input.OfficeId,
		GroupID:         input.GroupId,
		Firstname:       strings.TrimSpace(input.Firstname),
		Middlename:      strings.TrimSpace(input.Middlename),
		Lastname:        strings.TrimSpace(input.Lastname),
		MobileNo:        strings.TrimSpace(input.MobileNo),
		ExternalID:      strings.TrimSpace(input.ExternalId),
		Active:          input.Active,
		SubmittedOnDate: now.Format(fineractDateLayout),
		DateFormat:      "yyyy-MM-dd",
		Locale:          "en",
	}
	if input.Active {
		p.ActivationDate = input.ActivationDate
	}
	if a := input.Address; a != nil {
		p.Address = []fineract.Address{{
			AddressTypeID:   a.AddressTypeId,
			Street:          strings.TrimSpace(a.Street),
			AddressLine1:    strings.TrimSpace(a.AddressLine1),
			City:            strings.TrimSpace(a.City),
			StateProvinceID: a.StateProvinceId,
			CountryID:       a.CountryId,
			PostalCode:      strings.TrimSpace(a.PostalCode),
			IsActive:        true,
		}}
	}
	return p
}

// CreateClient submits the form to Fineract. When Fineract cannot be reached
// the payload is kept for the next payload sync and 202 is returned.
func (h *Handlers) CreateClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, remote, ok := h.session(c)
		if !ok {
			return
		}
		var input NewClient
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validateNewClient(input); err != nil {
			respondValidation(c, err)
			return
		}

		payload := input.toPayload(time.Now().UTC())
		res, err := remote.CreateClient(ctx, payload)
		if err == nil {
			c.JSON(http.StatusCreated, gin.H{"client_id": res.ClientID, "resource_id": res.ResourceID})
			return
		}
		if !errors.Is(err, fineract.ErrNetwork) {
			respondRemoteError(c, err)
			return
		}

		pending, err := models.CreateClientPayload(ctx, payload)
		if err != nil {
			config.LogError(config.GetLogger(), "clients.go", "CreateClient", "CreateClientPayload", payload.Firstname, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"pending_id": pending.ID})
	}
}

// ListPendingClients returns the client payloads still waiting for upload.
func (h *Handlers) ListPendingClients() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, err := utils.TenantFromContext(ctx); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		payloads, err := models.ListClientPayloads(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": payloads})
	}
}

// DeletePendingClient drops a payload the officer no longer wants uploaded.
func (h *Handlers) DeletePendingClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, err := utils.TenantFromContext(ctx); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		if _, err := models.GetClientPayload(ctx, uint(id)); err != nil {
			respondStoreError(c, err)
			return
		}
		if err := models.DeleteClientPayload(ctx, uint(id)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
