package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TenantDetails is present only when the property is tenant-occupied
type TenantDetails struct {
	MonthlyRent        *float64 `bson:"monthlyRent,omitempty" json:"monthlyRent,omitempty"`
	OwnerName          string   `bson:"ownerName,omitempty" json:"ownerName,omitempty"`
	OwnerFatherName    string   `bson:"ownerFatherName,omitempty" json:"ownerFatherName,omitempty"`
	OwnerMotherName    string   `bson:"ownerMotherName,omitempty" json:"ownerMotherName,omitempty"`
	OwnerContactNumber string   `bson:"ownerContactNumber,omitempty" json:"ownerContactNumber,omitempty"`
	StreetAddress      string   `bson:"streetAddress,omitempty" json:"streetAddress,omitempty"`
	ZipCode            string   `bson:"zipCode,omitempty" json:"zipCode,omitempty"`
}

// SurveyRecord is one field-survey submission. Exports never mutate records.
type SurveyRecord struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SurveyorName     string             `bson:"surveyorName" json:"surveyorName"`
	Phone            string             `bson:"phone" json:"phone"`
	Date             *time.Time         `bson:"date,omitempty" json:"date,omitempty"`
	WardNo           string             `bson:"wardNo" json:"wardNo"`
	PropertyAddress  string             `bson:"propertyAddress" json:"propertyAddress"`
	ZipCode          string             `bson:"zipCode" json:"zipCode"`
	Latitude         *float64           `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude        *float64           `bson:"longitude,omitempty" json:"longitude,omitempty"`
	OccupiersName    string             `bson:"occupiersName" json:"occupiersName"`
	Gender           string             `bson:"gender" json:"gender"`
	FatherName       string             `bson:"fatherName" json:"fatherName"`
	MotherName       string             `bson:"motherName" json:"motherName"`
	ContactNumber    string             `bson:"contactNumber" json:"contactNumber"`
	OwnerOrTenant    string             `bson:"ownerOrTenant" json:"ownerOrTenant"`
	TenantDetails    *TenantDetails     `bson:"tenantDetails,omitempty" json:"tenantDetails,omitempty"`
	AreaOfPlot       *float64           `bson:"areaOfPlot,omitempty" json:"areaOfPlot,omitempty"`
	NatureOfBuilding string             `bson:"natureOfBuilding" json:"natureOfBuilding"`
	NumberOfFloors   []string           `bson:"numberOfFloors,omitempty" json:"numberOfFloors,omitempty"`
	Floor            string             `bson:"floor,omitempty" json:"floor,omitempty"`
	FloorArea        *float64           `bson:"floorArea,omitempty" json:"floorArea,omitempty"`
	UsageType        string             `bson:"usageType" json:"usageType"`
	MainGatePhoto    string             `bson:"mainGatePhoto" json:"mainGatePhoto"`
	BuildingPhoto    string             `bson:"buildingPhoto" json:"buildingPhoto"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
}

// SubmitSurveyRequest is the payload of POST /api/form/submit. The two
// photos arrive as base64 data URIs and are uploaded to blob storage
// before the record is stored.
type SubmitSurveyRequest struct {
	SurveyorName     string         `json:"surveyorName" validate:"required"`
	Phone            string         `json:"phone" validate:"required"`
	Date             time.Time      `json:"date" validate:"required"`
	WardNo           string         `json:"wardNo" validate:"required"`
	PropertyAddress  string         `json:"propertyAddress" validate:"required"`
	ZipCode          string         `json:"zipCode" validate:"required"`
	Latitude         *float64       `json:"latitude" validate:"required"`
	Longitude        *float64       `json:"longitude" validate:"required"`
	OccupiersName    string         `json:"occupiersName" validate:"required"`
	Gender           string         `json:"gender" validate:"required"`
	FatherName       string         `json:"fatherName" validate:"required"`
	MotherName       string         `json:"motherName" validate:"required"`
	ContactNumber    string         `json:"contactNumber" validate:"required"`
	OwnerOrTenant    string         `json:"ownerOrTenant" validate:"required,oneof=owner tenant"`
	TenantDetails    *TenantDetails `json:"tenantDetails,omitempty"`
	AreaOfPlot       *float64       `json:"areaOfPlot" validate:"required"`
	NatureOfBuilding string         `json:"natureOfBuilding" validate:"required"`
	NumberOfFloors   []string       `json:"numberOfFloors" validate:"required"`
	Floor            string         `json:"floor"`
	FloorArea        *float64       `json:"floorArea" validate:"required"`
	UsageType        string         `json:"usageType" validate:"required"`
	MainGatePhoto    string         `json:"mainGatePhoto" validate:"required"`
	BuildingPhoto    string         `json:"buildingPhoto" validate:"required"`
}
