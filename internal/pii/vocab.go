package pii

// EntityType names a PII entity category. The vocabulary is open: the
// recognition service may return types this build has never seen, and those
// are passed through rather than rejected.
type EntityType string

// Standard entity types understood by the recognition service.
const (
	TypePerson          EntityType = "PERSON"
	TypeEmailAddress    EntityType = "EMAIL_ADDRESS"
	TypePhoneNumber     EntityType = "PHONE_NUMBER"
	TypeCreditCard      EntityType = "CREDIT_CARD"
	TypeIBAN            EntityType = "IBAN_CODE"
	TypeIPAddress       EntityType = "IP_ADDRESS"
	TypeURL             EntityType = "URL"
	TypeCrypto          EntityType = "CRYPTO"
	TypeDateTime        EntityType = "DATE_TIME"
	TypeLocation        EntityType = "LOCATION"
	TypeNRP             EntityType = "NRP"
	TypeMedicalLicense  EntityType = "MEDICAL_LICENSE"
	TypeUSSSN           EntityType = "US_SSN"
	TypeUSPassport      EntityType = "US_PASSPORT"
	TypeUSDriverLicense EntityType = "US_DRIVER_LICENSE"
	TypeUSBankNumber    EntityType = "US_BANK_NUMBER"
	TypeUSITIN          EntityType = "US_ITIN"
)

// Polish locale entity types backed by custom recognizers.
const (
	TypePLPesel  EntityType = "PL_PESEL"
	TypePLNIP    EntityType = "PL_NIP"
	TypePLRegon  EntityType = "PL_REGON"
	TypePLIDCard EntityType = "PL_ID_CARD"
)

// knownTypes is the validation set for requested entity types. Unknown
// types are retained with a warning, never rejected.
var knownTypes = map[EntityType]struct{}{
	TypePerson: {}, TypeEmailAddress: {}, TypePhoneNumber: {},
	TypeCreditCard: {}, TypeIBAN: {}, TypeIPAddress: {}, TypeURL: {},
	TypeCrypto: {}, TypeDateTime: {}, TypeLocation: {}, TypeNRP: {},
	TypeMedicalLicense: {}, TypeUSSSN: {}, TypeUSPassport: {},
	TypeUSDriverLicense: {}, TypeUSBankNumber: {}, TypeUSITIN: {},
	TypePLPesel: {}, TypePLNIP: {}, TypePLRegon: {}, TypePLIDCard: {},
}

// Known reports whether the type belongs to the validated vocabulary.
func (t EntityType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// generalTypes are document, financial, contact, and network identifiers
// that both language models detect reliably.
var generalTypes = []EntityType{
	TypeCreditCard,
	TypeIBAN,
	TypeEmailAddress,
	TypePhoneNumber,
	TypeIPAddress,
	TypeURL,
}

// polishTypes are the locale-specific identifiers only the Polish model and
// its custom recognizers understand.
var polishTypes = []EntityType{
	TypePLPesel,
	TypePLNIP,
	TypePLRegon,
	TypePLIDCard,
}

// legacyAliases maps legacy rule names onto the canonical vocabulary.
// Hinted and bare pattern variants collapse to the same canonical type.
var legacyAliases = map[string]EntityType{
	"PESEL_HINTED":   TypePLPesel,
	"PESEL_BARE":     TypePLPesel,
	"PESEL":          TypePLPesel,
	"NIP_HINTED":     TypePLNIP,
	"NIP_BARE":       TypePLNIP,
	"NIP":            TypePLNIP,
	"REGON_HINTED":   TypePLRegon,
	"REGON_BARE":     TypePLRegon,
	"REGON":          TypePLRegon,
	"ID_CARD":        TypePLIDCard,
	"DOWOD_OSOBISTY": TypePLIDCard,
	"EMAIL":          TypeEmailAddress,
	"E_MAIL":         TypeEmailAddress,
	"PHONE":          TypePhoneNumber,
	"PHONE_NUMBER":   TypePhoneNumber,
	"CARD_NUMBER":    TypeCreditCard,
	"CREDIT_CARD":    TypeCreditCard,
	"IBAN":           TypeIBAN,
	"IPV4":           TypeIPAddress,
	"IP":             TypeIPAddress,
	"URL":            TypeURL,
	"SSN":            TypeUSSSN,
}

// CanonicalType resolves a legacy rule name or entity type string to the
// canonical vocabulary. Names with no alias map to themselves.
func CanonicalType(name string) EntityType {
	if t, ok := legacyAliases[name]; ok {
		return t
	}
	return EntityType(name)
}
