package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"survey-export/internal/blob"
	"survey-export/internal/metrics"
	"survey-export/internal/models"
	"survey-export/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidSubmission is returned for survey payloads that fail validation
var ErrInvalidSubmission = errors.New("invalid submission")

// SurveyService handles survey submission and retrieval
type SurveyService struct {
	store       store.SurveyStore
	uploader    blob.Uploader
	validate    *validator.Validate
	metrics     *metrics.Metrics
	logger      *logrus.Logger
	photoFolder string
}

// NewSurveyService creates a new survey service
func NewSurveyService(surveyStore store.SurveyStore, uploader blob.Uploader, m *metrics.Metrics, logger *logrus.Logger, photoFolder string) *SurveyService {
	return &SurveyService{
		store:       surveyStore,
		uploader:    uploader,
		validate:    validator.New(),
		metrics:     m,
		logger:      logger,
		photoFolder: photoFolder,
	}
}

// Submit validates a survey payload, uploads its photos to blob storage
// and persists the record with the resulting URLs.
func (s *SurveyService) Submit(ctx context.Context, req *models.SubmitSurveyRequest) (*models.SurveyRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	mainGateURL, err := s.uploadPhoto(ctx, req.MainGatePhoto)
	if err != nil {
		return nil, err
	}
	buildingURL, err := s.uploadPhoto(ctx, req.BuildingPhoto)
	if err != nil {
		return nil, err
	}

	date := req.Date
	record := &models.SurveyRecord{
		SurveyorName:     req.SurveyorName,
		Phone:            req.Phone,
		Date:             &date,
		WardNo:           req.WardNo,
		PropertyAddress:  req.PropertyAddress,
		ZipCode:          req.ZipCode,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		OccupiersName:    req.OccupiersName,
		Gender:           req.Gender,
		FatherName:       req.FatherName,
		MotherName:       req.MotherName,
		ContactNumber:    req.ContactNumber,
		OwnerOrTenant:    req.OwnerOrTenant,
		TenantDetails:    req.TenantDetails,
		AreaOfPlot:       req.AreaOfPlot,
		NatureOfBuilding: req.NatureOfBuilding,
		NumberOfFloors:   req.NumberOfFloors,
		Floor:            req.Floor,
		FloorArea:        req.FloorArea,
		UsageType:        req.UsageType,
		MainGatePhoto:    mainGateURL,
		BuildingPhoto:    buildingURL,
	}

	record, err = s.store.Insert(ctx, record)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementSurveysSubmitted()
	s.logger.WithField("record_id", record.ID.Hex()).Info("survey submitted")

	return record, nil
}

// List returns all survey records, newest first
func (s *SurveyService) List(ctx context.Context) ([]*models.SurveyRecord, error) {
	return s.store.List(ctx)
}

// Delete removes a survey record
func (s *SurveyService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("record_id", id).Info("survey deleted")
	return nil
}

// uploadPhoto decodes a base64 data URI and stores it as an image blob
func (s *SurveyService) uploadPhoto(ctx context.Context, dataURI string) (string, error) {
	data, contentType, err := decodeDataURI(dataURI)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	name := uuid.New().String() + extensionFor(contentType)
	return s.uploader.UploadImage(ctx, data, s.photoFolder, name, contentType)
}

// decodeDataURI parses "data:<mediatype>;base64,<payload>" photo uploads
func decodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", errors.New("photo is not a data URI")
	}

	meta, payload, found := strings.Cut(uri[len("data:"):], ",")
	if !found {
		return nil, "", errors.New("photo data URI has no payload")
	}

	contentType, encoding, found := strings.Cut(meta, ";")
	if !found || encoding != "base64" {
		return nil, "", errors.New("photo data URI is not base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("photo payload is not valid base64: %v", err)
	}

	return data, contentType, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
