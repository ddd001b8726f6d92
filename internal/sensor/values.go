package sensor

import (
	"fmt"
	"strings"
)

type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vector2) Add(o Vector2) Vector2 { return Vector2{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vector2) Scale(f float64) Vector2 { return Vector2{X: v.X * f, Y: v.Y * f} }

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Rotation3 is an orientation in device-independent axes.
type Rotation3 struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// ActivityFlags is the set of activities a device currently detects.
type ActivityFlags uint8

const (
	ActivityStill ActivityFlags = 1 << iota
	ActivityWalking
	ActivityRunning
	ActivityBicycle
	ActivityVehicle
	ActivityTilting
)

var activityNames = []struct {
	flag ActivityFlags
	name string
}{
	{ActivityStill, "still"},
	{ActivityWalking, "walking"},
	{ActivityRunning, "running"},
	{ActivityBicycle, "bicycle"},
	{ActivityVehicle, "vehicle"},
	{ActivityTilting, "tilting"},
}

func (a ActivityFlags) Has(f ActivityFlags) bool { return a&f == f }

func (a ActivityFlags) String() string {
	if a == 0 {
		return "none"
	}
	var parts []string
	for _, n := range activityNames {
		if a.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("activity(%#x)", uint8(a))
	}
	return strings.Join(parts, "|")
}

// Posture is the coarse device orientation reported by the device itself.
type Posture uint8

const (
	PosturePortraitUpright Posture = iota
	PostureLandscapeLeft
	PosturePortraitUpsideDown
	PostureLandscapeRight
	PostureFaceUp
	PostureFaceDown

	postureCount
)

var postureNames = [postureCount]string{
	"portraitUpright", "landscapeLeft", "portraitUpsideDown",
	"landscapeRight", "faceUp", "faceDown",
}

func (p Posture) String() string {
	if p < postureCount {
		return postureNames[p]
	}
	return fmt.Sprintf("posture(%d)", uint8(p))
}

func (p Posture) Valid() bool { return p < postureCount }
