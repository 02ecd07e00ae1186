package protocol

// Field order is the wire order. Pointer fields are borsh Options.

// SpawnRequest asks the server to create the sender's player.
type SpawnRequest struct {
	Name string
}

// MoveRequest sets the sender's heading in radians.
type MoveRequest struct {
	Dir float32
}

// PlayerTO is the public view of a player.
type PlayerTO struct {
	ID          uint8
	Name        string
	X           float32
	Y           float32
	WeaponIndex *uint8
}

// AddPlayerData announces a player. IsMine is set only on the copy sent to
// the player's own connection.
type AddPlayerData struct {
	IsMine bool
	Data   PlayerTO
}

// AddPlayerMessage is the single-variant message enum the browser client
// decodes for opcode 1; the variant tag is always zero.
type AddPlayerMessage struct {
	Variant uint8
	Player  AddPlayerData
}

// UpdatePlayerData is broadcast every tick with all spawned players.
type UpdatePlayerData struct {
	Players []PlayerTO
}

// MapChunkData carries one chunk's tiles in row-major order.
type MapChunkData struct {
	CX    int32
	CY    int32
	Tiles []uint8
}

// AnimalTO is the public view of an animal.
type AnimalTO struct {
	ID         uint32
	X          float32
	Y          float32
	AnimalType uint8
}

// UpdateAnimalData is broadcast every tick with all live animals.
type UpdateAnimalData struct {
	Animals []AnimalTO
}

// RemovePlayerData tells clients a player left.
type RemovePlayerData struct {
	ID uint8
}
