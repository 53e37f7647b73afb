package models

type RentalSpot struct {
	ID            string  `yaml:"id" json:"id"`
	Name          string  `yaml:"name" json:"name"`
	UmbrellaCount int64   `yaml:"umbrellas" json:"umbrella_count"`
	Latitude      float64 `yaml:"latitude" json:"latitude"`
	Longitude     float64 `yaml:"longitude" json:"longitude"`
}
