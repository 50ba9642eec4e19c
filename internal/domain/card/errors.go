package card

import "errors"

var (
	ErrNotRecognized    = errors.New("card not recognized")
	ErrInactive         = errors.New("card is inactive")
	ErrNotLinked        = errors.New("card is not linked to an account")
	ErrAlreadyLinked    = errors.New("card is linked to another account")
	ErrInvalidPin       = errors.New("invalid PIN")
	ErrInvalidPinFormat = errors.New("PIN must be 4 to 6 digits")
	ErrInvalidUID       = errors.New("invalid card UID")

	errDuplicateUID  = errors.New("card uid already exists")
	errDuplicateCode = errors.New("dashboard code already exists")
)
