package game

// Weapon holds the tuning for one projectile weapon.
type Weapon struct {
	Name         string
	Speed        float64
	Damage       float64
	Cooldown     float64 // seconds between shots
	Radius       float64
	Lifetime     float64 // seconds
	Spread       []float64
	Pierce       int
	Bounces      int
	SplashRadius float64
	Color        string
}

// Weapons is the weapon table. Values are authoritative; client hints
// never override them.
var Weapons = map[string]Weapon{
	"bulwark-disc": {
		Name: "bulwark-disc", Speed: 880, Damage: 23, Cooldown: 0.44,
		Radius: 7, Lifetime: 1.55, Spread: []float64{0}, Pierce: 0, Bounces: 1,
		SplashRadius: 0, Color: "#7ed3ff",
	},
	"arcane-orb": {
		Name: "arcane-orb", Speed: 760, Damage: 29, Cooldown: 0.56,
		Radius: 9, Lifetime: 1.50, Spread: []float64{-0.08, 0.08}, Pierce: 0, Bounces: 0,
		SplashRadius: 70, Color: "#ffa76d",
	},
	"piercing-arrow": {
		Name: "piercing-arrow", Speed: 1080, Damage: 20, Cooldown: 0.33,
		Radius: 5, Lifetime: 1.30, Spread: []float64{0}, Pierce: 1, Bounces: 0,
		SplashRadius: 0, Color: "#87ffd5",
	},
	"rage-axe": {
		Name: "rage-axe", Speed: 700, Damage: 34, Cooldown: 0.60,
		Radius: 10, Lifetime: 1.35, Spread: []float64{0}, Pierce: 0, Bounces: 0,
		SplashRadius: 34, Color: "#ffcb6a",
	},
}

// HeroDefaultWeapon maps each hero class to its starting weapon.
var HeroDefaultWeapon = map[string]string{
	"knight":  "bulwark-disc",
	"wizard":  "arcane-orb",
	"archer":  "piercing-arrow",
	"warrior": "rage-axe",
}

// HeroBaseSpeed maps each hero class to its base movement speed (units/s).
var HeroBaseSpeed = map[string]float64{
	"knight":  312,
	"wizard":  302,
	"archer":  332,
	"warrior": 296,
}

// WeaponFor resolves the weapon for a hero/weapon selection, falling back
// to the hero default, then to the knight loadout.
func WeaponFor(hero, weapon string) Weapon {
	if w, ok := Weapons[weapon]; ok {
		return w
	}
	if name, ok := HeroDefaultWeapon[hero]; ok {
		return Weapons[name]
	}
	return Weapons["bulwark-disc"]
}

// SpeedFor resolves the base speed for a hero class.
func SpeedFor(hero string) float64 {
	if s, ok := HeroBaseSpeed[hero]; ok {
		return s
	}
	return HeroBaseSpeed["knight"]
}
